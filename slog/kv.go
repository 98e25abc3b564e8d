/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package slog

import (
	"fmt"

	"github.com/crewjam/rfc5424"
)

// KV builds a single structured-data field. Used throughout the
// supervisor instead of interpolating values into the message string,
// e.g. slog.KV("module", name), slog.KV("pid", pid).
func KV(name string, value interface{}) (r rfc5424.SDParam) {
	r.Name = name
	switch v := value.(type) {
	case string:
		r.Value = v
	default:
		r.Value = fmt.Sprintf("%v", value)
	}
	return
}

// KVErr is shorthand for KV("error", err), the single most common field.
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

// KVLogger pins a fixed set of structured fields (e.g. the module name
// and pid) onto every line it emits, so call sites don't have to repeat
// them.
type KVLogger struct {
	*Logger
	sds []rfc5424.SDParam
}

// WithKV returns a KVLogger that always includes the given fields in
// addition to whatever is passed to an individual call.
func (l *Logger) WithKV(sds ...rfc5424.SDParam) *KVLogger {
	return &KVLogger{Logger: l, sds: sds}
}

func (kvl *KVLogger) Debug(msg string, sds ...rfc5424.SDParam) error {
	return kvl.output(defaultCallDepth+1, DEBUG, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Info(msg string, sds ...rfc5424.SDParam) error {
	return kvl.output(defaultCallDepth+1, INFO, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Warn(msg string, sds ...rfc5424.SDParam) error {
	return kvl.output(defaultCallDepth+1, WARN, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Error(msg string, sds ...rfc5424.SDParam) error {
	return kvl.output(defaultCallDepth+1, ERROR, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Critical(msg string, sds ...rfc5424.SDParam) error {
	return kvl.output(defaultCallDepth+1, CRITICAL, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

// AddKV appends additional fields that will be included on every
// subsequent call made through this KVLogger.
func (kvl *KVLogger) AddKV(sds ...rfc5424.SDParam) {
	kvl.sds = append(kvl.sds, sds...)
}
