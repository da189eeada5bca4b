package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Recovery Lifecycle Events
	EventPreSaveRecovery    EventType = "PreSaveRecovery"
	EventPostSaveRecovery   EventType = "PostSaveRecovery"
	EventPostDeleteRecovery EventType = "PostDeleteRecovery"
	EventPostReconstruct    EventType = "PostReconstruct"

	// Maintenance Events
	EventPostCleanup EventType = "PostCleanup"

	// Session Events
	EventOnCrashDetected  EventType = "OnCrashDetected"
	EventOnIntegrityError EventType = "OnIntegrityError"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// HookListener receives events it was registered for.
type HookListener interface {
	// OnEvent is called when a registered event is triggered.
	// For Pre-hooks, returning an error cancels the operation.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners; lower values run first.
	Priority() int
	// IsAsync asks for the listener to run in its own goroutine.
	// Ignored for Pre-hooks, which are always synchronous.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreSaveRecoveryPayload is sent before any file of a save is touched.
type PreSaveRecoveryPayload struct {
	ID               string
	ChunkCount       int
	OriginalFileSize int
	FinalSize        int
}

// NewPreSaveRecoveryEvent creates a new event for before a chunk set is saved.
func NewPreSaveRecoveryEvent(payload PreSaveRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPreSaveRecovery, payload: payload}
}

// PostSaveRecoveryPayload describes a completed save.
type PostSaveRecoveryPayload struct {
	ID           string
	ChunkCount   int
	ContentSize  int   // size of the buffer the chunks describe
	BytesWritten int64 // chunk payload plus metadata bytes written
	Duration     time.Duration
}

// NewPostSaveRecoveryEvent creates a new event for after a chunk set is saved.
func NewPostSaveRecoveryEvent(payload PostSaveRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostSaveRecovery, payload: payload}
}

// PostDeleteRecoveryPayload names the id whose files were removed.
type PostDeleteRecoveryPayload struct {
	ID           string
	FilesRemoved int
}

// NewPostDeleteRecoveryEvent creates a new event for after an entry is deleted.
func NewPostDeleteRecoveryEvent(payload PostDeleteRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeleteRecovery, payload: payload}
}

// PostReconstructPayload describes a successful reconstruction.
type PostReconstructPayload struct {
	ID           string
	OriginalPath string
	FinalSize    int
	Duration     time.Duration
}

// NewPostReconstructEvent creates a new event for after a buffer is rebuilt.
func NewPostReconstructEvent(payload PostReconstructPayload) HookEvent {
	return &BaseEvent{eventType: EventPostReconstruct, payload: payload}
}

// CleanupKind tells which maintenance pass produced a PostCleanup event.
type CleanupKind string

const (
	CleanupOrphans CleanupKind = "orphans"
	CleanupAll     CleanupKind = "all"
)

// PostCleanupPayload reports the result of a maintenance pass.
type PostCleanupPayload struct {
	Kind    CleanupKind
	Removed int
}

// NewPostCleanupEvent creates a new event for after a maintenance pass.
func NewPostCleanupEvent(payload PostCleanupPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCleanup, payload: payload}
}

// CrashDetectedPayload describes the session that did not exit cleanly.
type CrashDetectedPayload struct {
	PID           int
	LastHeartbeat time.Time
	Candidates    int // recoverable entries found
}

// NewOnCrashDetectedEvent creates a new event for an unclean previous session.
func NewOnCrashDetectedEvent(payload CrashDetectedPayload) HookEvent {
	return &BaseEvent{eventType: EventOnCrashDetected, payload: payload}
}

// IntegrityErrorPayload reports an entry that could not be trusted.
type IntegrityErrorPayload struct {
	ID  string
	Err error
}

// NewOnIntegrityErrorEvent creates a new event for a corrupt recovery entry.
func NewOnIntegrityErrorEvent(payload IntegrityErrorPayload) HookEvent {
	return &BaseEvent{eventType: EventOnIntegrityError, payload: payload}
}

// listenerWithPriority wraps a listener with its priority for ordering.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]

	// Insert after every listener of equal priority so registration order
	// breaks ties.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})

	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}

		m.wg.Add(1)
		go func(currentItem *listenerWithPriority) {
			defer m.wg.Done()
			if err := currentItem.listener.OnEvent(ctx, event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
			}
		}(item)
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
