// Command recovery-util inspects and maintains an editor's crash-recovery
// directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/INLOpen/nexusedit/config"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/hooks/listeners"
	"github.com/INLOpen/nexusedit/recovery"
	"github.com/INLOpen/nexusedit/session"
	"github.com/spf13/pflag"
)

const usage = `recovery-util manages an editor's crash-recovery directory.

Usage:
  recovery-util [--config FILE] [--dir DIR] <command> [args]

Commands:
  list                                   list recovery entries, newest first
  show <id>                              print the metadata of an entry
  reconstruct <id> <original> [-o FILE]  rebuild a buffer from its chunks
  save <original> <edited> [--id ID]     record edited as chunks against original
  delete <id>                            remove every file of an entry
  cleanup                                remove incomplete entries
  cleanup-all                            remove every entry, keep the session lock
  crash-check [--claim]                  report whether the last session crashed
  watch <original> <edited>              autosave edited until interrupted
  export <id> <file> [--compression C]   write an entry as a single bundle file
  import <file> [--id ID]                restore an entry from a bundle file
  id <path>                              print the recovery id of a file
`

// errUsage marks a command line that could not be understood.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	hooks  hooks.HookManager
	store  *recovery.Store
	lock   *session.Lock
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var configPath, dir string
	flagSet := pflag.NewFlagSet("recovery-util", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flagSet.StringVar(&dir, "dir", "", "recovery directory (overrides recovery.dir)")
	flagSet.Usage = func() { fmt.Fprint(stderr, usage) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if flagSet.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Recovery.Dir = dir
	}

	logger, closer, err := createLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	tp, cleanupTracing, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer cleanupTracing()

	hm := hooks.NewHookManager(logger)
	if cfg.Debug.MetricsEnabled {
		hm.Register(hooks.EventPostSaveRecovery, listeners.NewWriteRatioListener(logger))
	}
	defer func() {
		// Async listeners must finish before their counters are read.
		hm.Stop()
		if cfg.Debug.MetricsEnabled {
			dumpMetrics(stderr)
		}
	}()

	store, err := recovery.New(cfg.Recovery.Dir,
		recovery.WithLogger(logger),
		recovery.WithTracer(tp.Tracer("recovery-util")),
		recovery.WithHookManager(hm),
		recovery.WithReadConcurrency(cfg.Recovery.ReadConcurrency),
	)
	if err != nil {
		return err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		hooks:  hm,
		store:  store,
		lock:   session.New(cfg.Recovery.Dir, session.WithLogger(logger)),
		stdout: stdout,
		stderr: stderr,
	}

	name, cmdArgs := flagSet.Arg(0), flagSet.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	return cmd(ctx, a, cmdArgs)
}
