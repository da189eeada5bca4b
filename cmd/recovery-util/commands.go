package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/INLOpen/nexusedit/bundle"
	"github.com/INLOpen/nexusedit/compressors"
	"github.com/INLOpen/nexusedit/config"
	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/recovery"
	"github.com/INLOpen/nexusedit/session"
	"github.com/INLOpen/nexusedit/sys"
	"github.com/spf13/pflag"
)

type command func(ctx context.Context, a *app, args []string) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"list":        cmdList,
		"show":        cmdShow,
		"reconstruct": cmdReconstruct,
		"save":        cmdSave,
		"delete":      cmdDelete,
		"cleanup":     cmdCleanup,
		"cleanup-all": cmdCleanupAll,
		"crash-check": cmdCrashCheck,
		"watch":       cmdWatch,
		"export":      cmdExport,
		"import":      cmdImport,
		"id":          cmdID,
	}
}

// parseArgs parses the flags of a subcommand and checks its positional count.
func parseArgs(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func cmdList(_ context.Context, a *app, args []string) error {
	if _, err := parseArgs(a.flagSet("list"), args, 0); err != nil {
		return err
	}
	entries, err := a.store.ListEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "No recovery entries found.")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFORMAT\tCHUNKS\tSIZE\tUPDATED AT")
	fmt.Fprintln(w, "--\t----\t------\t------\t----\t----------")
	for _, e := range entries {
		format := "legacy"
		if e.IsChunked() {
			format = "chunked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.ID,
			e.Metadata.DisplayName(),
			format,
			e.Metadata.ChunkCount,
			e.Metadata.ContentSize,
			e.Metadata.UpdatedAt.Local().Format("2006-01-02 15:04:05 MST"),
		)
	}
	return w.Flush()
}

func cmdShow(_ context.Context, a *app, args []string) error {
	pos, err := parseArgs(a.flagSet("show"), args, 1)
	if err != nil {
		return err
	}
	e, err := a.store.Entry(pos[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

func cmdReconstruct(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("reconstruct")
	out := fs.StringP("output", "o", "", "write the result to this file instead of stdout")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	content, err := a.store.ReconstructFromChunks(ctx, pos[0], pos[1])
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = a.stdout.Write(content)
		return err
	}
	if err := sys.WriteFileAtomic(*out, content, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %d bytes to %s\n", len(content), *out)
	return nil
}

func cmdSave(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("save")
	id := fs.String("id", "", "recovery id (default: derived from the original path)")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	meta, savedID, err := saveEdited(ctx, a.store, *id, pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %s: %d chunk(s), %d bytes\n", savedID, meta.ChunkCount, meta.ContentSize)
	return nil
}

// saveEdited records the difference between the files original and edited.
func saveEdited(ctx context.Context, store *recovery.Store, id, original, edited string) (*recovery.Metadata, string, error) {
	if id == "" {
		var err error
		if id, err = recovery.IDForPath(original); err != nil {
			return nil, "", err
		}
	}
	before, err := sys.ReadFile(original)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read original: %w", err)
	}
	after, err := sys.ReadFile(edited)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read edited buffer: %w", err)
	}
	info, err := sys.Stat(original)
	if err != nil {
		return nil, "", err
	}
	mtime := info.ModTime()
	lines := bytes.Count(after, []byte{'\n'})
	if len(after) > 0 && after[len(after)-1] != '\n' {
		lines++
	}

	meta, err := store.Save(ctx, recovery.SaveRequest{
		ID:               id,
		Chunks:           recovery.DiffChunks(before, after),
		OriginalPath:     original,
		LineCount:        &lines,
		OriginalMtime:    &mtime,
		OriginalFileSize: len(before),
		FinalSize:        len(after),
	})
	return meta, id, err
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(a.flagSet("delete"), args, 1)
	if err != nil {
		return err
	}
	if err := a.store.DeleteRecovery(ctx, pos[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted %s\n", pos[0])
	return nil
}

func cmdCleanup(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(a.flagSet("cleanup"), args, 0); err != nil {
		return err
	}
	n, err := a.store.CleanupOrphans(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed %d orphaned entr%s\n", n, plural(n, "y", "ies"))
	return nil
}

func cmdCleanupAll(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(a.flagSet("cleanup-all"), args, 0); err != nil {
		return err
	}
	n, err := a.store.CleanupAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed %d file%s\n", n, plural(n, "", "s"))
	return nil
}

func cmdCrashCheck(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("crash-check")
	claim := fs.Bool("claim", false, "take over the session lock, as an editor does at startup")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	if !*claim {
		crashed, err := a.lock.DetectCrash()
		if err != nil {
			return err
		}
		info, _ := a.lock.Read()
		printCrashStatus(a, crashed, info)
		return nil
	}

	report, err := a.store.Startup(ctx, a.lock, recovery.StartupOptions{CleanupOrphans: a.cfg.Recovery.CleanupOrphansOnStart})
	if err != nil {
		return err
	}
	printCrashStatus(a, report.CrashDetected, report.PreviousSession)
	if report.OrphansRemoved > 0 {
		fmt.Fprintf(a.stdout, "Removed %d orphaned entr%s\n", report.OrphansRemoved, plural(report.OrphansRemoved, "y", "ies"))
	}
	for _, e := range report.Candidates {
		fmt.Fprintf(a.stdout, "Recoverable: %s (%s)\n", e.ID, e.Metadata.DisplayName())
	}
	return nil
}

func printCrashStatus(a *app, crashed bool, info *session.Info) {
	switch {
	case crashed && info != nil:
		fmt.Fprintf(a.stdout, "Crash detected: pid %d, last heartbeat %s\n", info.PID, info.Heartbeat.Local().Format(time.RFC3339))
	case crashed:
		fmt.Fprintln(a.stdout, "Crash detected: session lock is unreadable")
	default:
		fmt.Fprintln(a.stdout, "No crash detected")
	}
}

// cmdWatch behaves like an editor session for one buffer: it claims the
// session lock, autosaves edited against original on every tick and keeps
// the heartbeat fresh. On interrupt it exits cleanly, removing both the
// entry and the lock.
func cmdWatch(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(a.flagSet("watch"), args, 2)
	if err != nil {
		return err
	}
	original, edited := pos[0], pos[1]

	report, err := a.store.Startup(ctx, a.lock, recovery.StartupOptions{CleanupOrphans: a.cfg.Recovery.CleanupOrphansOnStart})
	if err != nil {
		return err
	}
	if report.CrashDetected {
		fmt.Fprintf(a.stdout, "Previous session crashed; %d entr%s can be recovered\n",
			len(report.Candidates), plural(len(report.Candidates), "y", "ies"))
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	defer func() {
		stopHeartbeat()
		<-heartbeatDone
	}()
	go func() {
		defer close(heartbeatDone)
		a.lock.RunHeartbeat(heartbeatCtx, config.ParseDuration(a.cfg.Recovery.HeartbeatInterval, 10*time.Second, a.logger))
	}()

	interval := config.ParseDuration(a.cfg.Recovery.AutosaveInterval, 30*time.Second, a.logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var id string
	for {
		meta, savedID, err := saveEdited(ctx, a.store, "", original, edited)
		if err != nil {
			a.logger.Warn("Autosave failed", "error", err)
		} else {
			id = savedID
			a.logger.Debug("Autosaved", "id", id, "chunks", meta.ChunkCount)
		}

		select {
		case <-ctx.Done():
			stopHeartbeat()
			<-heartbeatDone
			// A clean exit leaves nothing to recover.
			if id != "" {
				if err := a.store.DeleteRecovery(context.Background(), id); err != nil {
					a.logger.Warn("Failed to delete recovery entry", "id", id, "error", err)
				}
			}
			return a.lock.Remove()
		case <-ticker.C:
		}
	}
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("export")
	compression := fs.String("compression", a.cfg.Recovery.BundleCompression, "bundle compression: none, snappy, lz4 or zstd")
	pos, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	c, err := compressors.ForName(*compression)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := bundle.WriteFile(ctx, a.store, pos[0], pos[1], c); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Exported %s to %s (%s)\n", pos[0], pos[1], c.Type())
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("import")
	id := fs.String("id", "", "save under this id instead of the one in the bundle")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	savedID, meta, err := bundle.ReadFile(ctx, a.store, pos[0], *id)
	if err != nil {
		if core.IsIntegrityError(err) {
			return fmt.Errorf("bundle %s is damaged: %w", pos[0], err)
		}
		return err
	}
	fmt.Fprintf(a.stdout, "Imported %s: %d chunk(s), %d bytes\n", savedID, meta.ChunkCount, meta.ContentSize)
	return nil
}

func cmdID(_ context.Context, a *app, args []string) error {
	pos, err := parseArgs(a.flagSet("id"), args, 1)
	if err != nil {
		return err
	}
	id, err := recovery.IDForPath(pos[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

