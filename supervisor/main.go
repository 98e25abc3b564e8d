/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command supervisor is the process supervisor's entrypoint: it parses
// a configuration template, starts the lifecycle scheduler and the
// control-plane server against a shared runtime table, and on any
// termination signal writes a backup of that table before exiting.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/zidekmat/nemea-supervisor/backup"
	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/control"
	"github.com/zidekmat/nemea-supervisor/reconcile"
	"github.com/zidekmat/nemea-supervisor/scheduler"
	"github.com/zidekmat/nemea-supervisor/slog"
	"github.com/zidekmat/nemea-supervisor/utils"
)

const (
	defaultDaemonSocket = `/tmp/trap-supervisor.sock`
	defaultConfigsPath  = `/tmp/sup_configs`
	daemonLogsDir       = `/tmp/daemon_supervisor_logs`
	interactiveLogsDir  = `/tmp/interactive_supervisor_logs`
)

var (
	daemonFlag    = flag.Bool(`d`, false, "Run as a daemon")
	templateFlag  = flag.String(`T`, ``, "Path to the configuration template (required, .xml)")
	configsPath   = flag.String(`C`, defaultConfigsPath, "Directory the expanded running configuration is written to")
	socketFlag    = flag.String(`s`, defaultDaemonSocket, "Path to the operator control socket")
	logsPathFlag  = flag.String(`L`, ``, "Directory for supervisor and module log files")
	verboseFlag   = flag.Bool(`v`, false, "Verbose logging")
)

func init() {
	flag.BoolVar(daemonFlag, `daemon`, false, "Run as a daemon")
	flag.StringVar(templateFlag, `config-template`, ``, "Path to the configuration template (required, .xml)")
	flag.StringVar(configsPath, `configs-path`, defaultConfigsPath, "Directory the expanded running configuration is written to")
	flag.StringVar(socketFlag, `daemon-socket`, defaultDaemonSocket, "Path to the operator control socket")
	flag.StringVar(logsPathFlag, `logs-path`, ``, "Directory for supervisor and module log files")
	flag.BoolVar(verboseFlag, `verbose`, false, "Verbose logging")
}

func main() {
	flag.Parse()
	utils.MaxProcTune(runtime.NumCPU())

	if *templateFlag == `` {
		fmt.Fprintln(os.Stderr, "Missing required config template (-T|--config-template).")
		os.Exit(1)
	}
	if !strings.HasSuffix(*templateFlag, `.xml`) {
		fmt.Fprintln(os.Stderr, "File does not have expected .xml extension.")
		os.Exit(1)
	}

	logsDir := resolveLogsDir(*logsPathFlag, *daemonFlag)
	lgr := openSupervisorLogger(logsDir)
	if *verboseFlag {
		lgr.SetLevel(slog.DEBUG)
	}

	absTemplate, err := filepath.Abs(*templateFlag)
	if err != nil {
		lgr.Fatal("failed to resolve template path", slog.KVErr(err))
	}

	cfg, err := loadConfig(absTemplate, lgr)
	if err != nil {
		lgr.Fatal("failed to load configuration", slog.KVErr(err))
	}
	cfg.LogsDirectory = logsDir

	if err := writeRunningConfig(*configsPath, absTemplate); err != nil {
		lgr.Warn("failed to persist expanded running configuration", slog.KVErr(err))
	}

	statsLgr, err := slog.NewFile(filepath.Join(logsDir, `supervisor_log_statistics`))
	if err != nil {
		lgr.Warn("failed to open statistics log, discarding", slog.KVErr(err))
		statsLgr = slog.NewDiscard()
	}

	var cfgMu sync.Mutex

	sched := scheduler.New(cfg, &cfgMu, lgr, statsLgr)

	hooks := control.Hooks{
		Reload: func() error {
			return reloadConfig(cfg, absTemplate, &cfgMu, lgr)
		},
		StatsSnapshot: func() []byte {
			cfgMu.Lock()
			defer cfgMu.Unlock()
			return []byte(fmt.Sprintf("loaded=%d running=%d\n", len(cfg.Modules), cfg.RunningCount()))
		},
	}

	die := make(chan struct{})
	hooks.Shutdown = func() {
		select {
		case <-die:
		default:
			close(die)
		}
	}

	srv := control.New(cfg, &cfgMu, lgr, *socketFlag, logsDir, hooks)
	if err := srv.Start(); err != nil {
		lgr.Fatal("failed to start control server", slog.KVErr(err))
	}
	defer srv.Close()

	sched.Start()
	defer sched.Close()

	lgr.Info("supervisor started", slog.KV(`modules`, len(cfg.Modules)), slog.KV(`socket`, *socketFlag))

	waitForShutdown(die, cfg, absTemplate, &cfgMu, lgr)

	sched.RequestStop()
	sched.Wait()
	sched.Close()

	if err := backup.Write(cfg, absTemplate); err != nil {
		lgr.Error("failed to write shutdown backup", slog.KVErr(err))
	}
	lgr.Info("supervisor exiting")
}

// resolveLogsDir matches the teacher's (original C implementation's)
// mode-dependent default: an explicit -L always wins, otherwise daemon
// and interactive runs land in different default trees.
func resolveLogsDir(explicit string, daemon bool) string {
	dir := explicit
	if dir == `` {
		if daemon {
			dir = daemonLogsDir
		} else {
			dir = interactiveLogsDir
		}
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logs directory %s: %v, falling back to working directory\n", dir, err)
		return `.`
	}
	return dir
}

func openSupervisorLogger(logsDir string) *slog.Logger {
	lgr, err := slog.NewFile(filepath.Join(logsDir, `supervisor_log`))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open supervisor log: %v, discarding log output\n", err)
		return slog.NewDiscard()
	}
	return lgr
}

// writeRunningConfig persists the expanded, include-resolved template
// under configsPath for operator inspection, mirroring the original
// implementation's running_config_file.xml side effect of -C.
func writeRunningConfig(configsPath, absTemplate string) error {
	expanded, err := config.ExpandIncludes(absTemplate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configsPath, 0775); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configsPath, `running_config_file.xml`), expanded, 0664)
}

// loadConfig prefers a prior backup (scenario 5, re-adoption) and falls
// back to parsing the template fresh.
func loadConfig(absTemplate string, lgr *slog.Logger) (*config.Config, error) {
	if cfg, err := backup.Read(absTemplate); err == nil {
		lgr.Info("adopted configuration from backup", slog.KV(`modules`, len(cfg.Modules)))
		return cfg, nil
	} else if err != backup.ErrNoBackup {
		lgr.Warn("failed to read backup, parsing template instead", slog.KVErr(err))
	}
	return config.Parse(absTemplate)
}

// reloadConfig implements C8's "reload" menu action and one-shot mode:
// parse the template again and diff it onto the live table under the
// configuration lock. The already-running scheduler picks up the
// effects (promotions, starts) on its own next tick.
func reloadConfig(live *config.Config, absTemplate string, mu sync.Locker, lgr *slog.Logger) error {
	incoming, err := config.Parse(absTemplate)
	if err != nil {
		return err
	}
	mu.Lock()
	sum := reconcile.Reconcile(live, incoming)
	mu.Unlock()
	lgr.Info("reload complete",
		slog.KV(`inserted`, sum.Inserted), slog.KV(`removed`, sum.Removed),
		slog.KV(`modified`, sum.Modified), slog.KV(`unchanged`, sum.Unchanged))
	return nil
}

// waitForShutdown blocks until either an operator "terminate" gesture
// closes die, or a termination signal arrives. SIGPIPE is ignored
// (a module closing its stdout/stderr pipe must not kill the
// supervisor); SIGINT/SIGTERM/SIGQUIT trigger a clean shutdown;
// SIGSEGV is caught only so a backup can still be attempted before the
// process dies.
func waitForShutdown(die chan struct{}, cfg *config.Config, absTemplate string, mu sync.Locker, lgr *slog.Logger) {
	sch := utils.GetQuitChannel()

	select {
	case <-die:
		return
	case sig := <-sch:
		lgr.Info("received termination signal", slog.KV(`signal`, sig.String()))
		if sig == syscall.SIGSEGV {
			mu.Lock()
			if err := backup.Write(cfg, absTemplate); err != nil {
				lgr.Error("failed to write crash backup", slog.KVErr(err))
			}
			mu.Unlock()
			os.Exit(1)
		}
	}
}
