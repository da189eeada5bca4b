// Package session records the liveness of the running editor in a single
// lock file so the next launch can tell a clean exit from a crash.
//
// The lock is an explicitly constructed object owning its directory, never a
// process-wide singleton, so tests can point it at an isolated directory.
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/INLOpen/nexusedit/core"
	"github.com/INLOpen/nexusedit/sys"
)

// Info is the content of the session lock file.
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Heartbeat time.Time `json:"heartbeat"`
}

// Lock manages the session lock file inside a recovery directory.
type Lock struct {
	// mu serializes writers so a heartbeat cannot interleave with Remove.
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
	pid    int
}

// Option configures a Lock.
type Option func(*Lock)

// WithLogger sets the logger used by the lock.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger.With("component", "SessionLock")
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Lock) { l.now = now }
}

// New returns a Lock for the session.lock file in dir. It does not touch the
// filesystem.
func New(dir string, opts ...Option) *Lock {
	l := &Lock{
		path:   filepath.Join(dir, core.SessionLockFileName),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		pid:    os.Getpid(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path is the location of the lock file.
func (l *Lock) Path() string { return l.path }

// Create writes a fresh lock for the current process, replacing any lock a
// previous session left behind. Call DetectCrash first if that matters.
func (l *Lock) Create() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	info := Info{PID: l.pid, StartedAt: now, Heartbeat: now}
	if err := sys.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create recovery directory: %w", err)
	}
	if err := l.write(info); err != nil {
		return err
	}
	l.logger.Debug("Session lock created", "pid", info.PID)
	return nil
}

// Update refreshes the heartbeat. It is a no-op when no lock exists. The
// read and the rewrite happen under the same mutex as Remove, so a heartbeat
// racing with shutdown cannot resurrect the lock.
func (l *Lock) Update() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.Read()
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	info.Heartbeat = l.now().UTC()
	return l.write(*info)
}

// Remove deletes the lock on clean shutdown. Removing a missing lock succeeds.
func (l *Lock) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := sys.RemoveIfExists(l.path); err != nil {
		return fmt.Errorf("failed to remove session lock: %w", err)
	}
	l.logger.Debug("Session lock removed")
	return nil
}

// Read returns the recorded session, or nil without error when there is none.
func (l *Lock) Read() (*Info, error) {
	data, err := sys.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session lock: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.NewIntegrityError(core.SessionLockFileName, "unparseable session lock", err)
	}
	return &info, nil
}

// DetectCrash reports whether the previous session ended without removing its
// lock: a lock exists and the process it names is no longer running.
//
// A pid reused by an unrelated process after the crash makes this return
// false; that case is not distinguished.
func (l *Lock) DetectCrash() (bool, error) {
	info, err := l.Read()
	if err != nil {
		if core.IsIntegrityError(err) {
			// A lock we cannot parse was left by someone who did not exit cleanly.
			l.logger.Warn("Session lock is corrupt, treating as crash", "error", err)
			return true, nil
		}
		return false, err
	}
	if info == nil {
		return false, nil
	}
	alive, err := sys.ProcessExists(info.PID)
	if err != nil {
		return false, fmt.Errorf("failed to check process %d: %w", info.PID, err)
	}
	if !alive {
		l.logger.Info("Previous session did not exit cleanly", "pid", info.PID, "last_heartbeat", info.Heartbeat)
	}
	return !alive, nil
}

func (l *Lock) write(info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session lock: %w", err)
	}
	if err := sys.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session lock: %w", err)
	}
	return nil
}
