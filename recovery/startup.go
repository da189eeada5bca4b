package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/hooks"
	"github.com/INLOpen/nexusedit/session"
)

// StartupOptions controls Startup.
type StartupOptions struct {
	// CleanupOrphans collects incomplete entries before listing candidates.
	CleanupOrphans bool
}

// StartupReport is what the editor needs to decide whether to offer recovery.
type StartupReport struct {
	CrashDetected   bool
	PreviousSession *session.Info // nil when there was no lock or it was unreadable
	OrphansRemoved  int
	// LiveSessionReplaced is set when the lock belonged to another process
	// that is still running. Startup claims the lock anyway.
	LiveSessionReplaced bool
	// Candidates are the recoverable entries, newest first. Only filled in
	// when a crash was detected; recovery is offered, never forced.
	Candidates []Entry
}

// Startup runs the launch sequence of the recovery subsystem: it checks the
// previous session's lock, optionally collects orphans, lists recovery
// candidates after a crash, and finally claims the lock for this process.
func (s *Store) Startup(ctx context.Context, lock *session.Lock, opts StartupOptions) (*StartupReport, error) {
	ctx, span := s.tracer.Start(ctx, "RecoveryStore.Startup")
	defer span.End()

	report := &StartupReport{}

	prev, err := lock.Read()
	if err != nil && !core.IsIntegrityError(err) {
		return nil, err
	}
	report.PreviousSession = prev

	report.CrashDetected, err = lock.DetectCrash()
	if err != nil {
		return nil, fmt.Errorf("failed to check previous session: %w", err)
	}

	if !report.CrashDetected && prev != nil && prev.PID != os.Getpid() {
		report.LiveSessionReplaced = true
		s.logger.Warn("Session lock is held by a running process, taking it over", "pid", prev.PID, "last_heartbeat", prev.Heartbeat)
	}

	if opts.CleanupOrphans {
		report.OrphansRemoved, err = s.CleanupOrphans(ctx)
		if err != nil {
			s.logger.Warn("Orphan cleanup failed", "error", err)
		}
	}

	if report.CrashDetected {
		report.Candidates, err = s.ListEntries()
		if err != nil {
			return nil, err
		}
		s.logger.Info("Crash detected, recovery available", "candidates", len(report.Candidates))
		if s.hooks != nil {
			payload := hooks.CrashDetectedPayload{Candidates: len(report.Candidates)}
			if prev != nil {
				payload.PID = prev.PID
				payload.LastHeartbeat = prev.Heartbeat
			}
			_ = s.hooks.Trigger(ctx, hooks.NewOnCrashDetectedEvent(payload))
		}
	}

	if err := lock.Create(); err != nil {
		return nil, err
	}
	return report, nil
}
