/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package launcher

import (
	"errors"
	"fmt"

	"github.com/google/shlex"
)

// Tokenization failure modes a module's params string can trigger; a
// module hitting any of these fails to start and is disabled rather
// than started with a mis-split argv.
var (
	ErrQuoteMidToken    = errors.New("quote begins in the middle of a token")
	ErrEmptyQuoted      = errors.New("empty quoted region")
	ErrUnterminatedQuote = errors.New("unterminated quote")
	ErrQuoteInQuote     = errors.New("single quote inside double-quoted segment")
)

// Tokenize splits a module's params string the way a shell would:
// double- and single-quoted segments, unquoted whitespace as a
// separator. Four patterns are rejected outright rather than silently
// tolerated, since a module started with a wrongly-split argv is worse
// than one that fails to start at all:
//
//   - a quote character opening partway through an already-started token
//   - a quoted region that is empty ("" or '')
//   - a quote left open at end of string
//   - a literal single quote appearing inside a double-quoted segment
//
// Once those are ruled out, the actual split is delegated to shlex,
// which implements the same POSIX-ish word-splitting rules.
func Tokenize(s string) ([]string, error) {
	if err := prescan(s); err != nil {
		return nil, err
	}
	toks, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnterminatedQuote, err)
	}
	return toks, nil
}

const (
	stateGap = iota
	stateBareToken
	stateSingle
	stateDouble
)

func prescan(s string) error {
	state := stateGap
	quoteStart := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateGap:
			switch {
			case c == ' ' || c == '\t':
				// stay in gap
			case c == '\'':
				state = stateSingle
				quoteStart = i
			case c == '"':
				state = stateDouble
				quoteStart = i
			default:
				state = stateBareToken
			}
		case stateBareToken:
			switch {
			case c == ' ' || c == '\t':
				state = stateGap
			case c == '\'' || c == '"':
				return ErrQuoteMidToken
			}
		case stateSingle:
			if c == '\'' {
				if i == quoteStart+1 {
					return ErrEmptyQuoted
				}
				state = stateGap
			}
		case stateDouble:
			switch c {
			case '"':
				if i == quoteStart+1 {
					return ErrEmptyQuoted
				}
				state = stateGap
			case '\'':
				return ErrQuoteInQuote
			}
		}
	}
	if state == stateSingle || state == stateDouble {
		return ErrUnterminatedQuote
	}
	return nil
}
