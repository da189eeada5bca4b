package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/nexusedit/hooks"
)

// WriteRatioListener tracks how many bytes autosave writes relative to the
// size of the buffers it protects. A chunked store should keep this ratio
// well below 1; a ratio near 1 means every save rewrites whole buffers.
var (
	// Use sync.Once to ensure these expvars are only ever created once,
	// making NewWriteRatioListener idempotent.
	writeRatioOnce     sync.Once
	totalBufferBytes   *expvar.Int
	totalRecoveryBytes *expvar.Int
	recoverySaveEvents *expvar.Int
)

func initWriteRatioMetrics() {
	writeRatioOnce.Do(func() {
		totalBufferBytes = expvar.NewInt("recovery_buffer_bytes_total")
		totalRecoveryBytes = expvar.NewInt("recovery_bytes_written_total")
		recoverySaveEvents = expvar.NewInt("recovery_save_events_total")
		expvar.Publish("recovery_write_ratio", expvar.Func(func() interface{} {
			buffered := totalBufferBytes.Value()
			if buffered == 0 {
				return 0.0
			}
			return float64(totalRecoveryBytes.Value()) / float64(buffered)
		}))
	})
}

type WriteRatioListener struct {
	logger *slog.Logger

	totalBufferBytes   *expvar.Int
	totalRecoveryBytes *expvar.Int
	recoverySaveEvents *expvar.Int
}

// NewWriteRatioListener creates a new listener.
func NewWriteRatioListener(logger *slog.Logger) *WriteRatioListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initWriteRatioMetrics()
	return &WriteRatioListener{
		logger:             logger.With("component", "WriteRatioListener"),
		totalBufferBytes:   totalBufferBytes,
		totalRecoveryBytes: totalRecoveryBytes,
		recoverySaveEvents: recoverySaveEvents,
	}
}

// OnEvent is called when a PostSaveRecovery event is triggered.
func (l *WriteRatioListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	payload, ok := event.Payload().(hooks.PostSaveRecoveryPayload)
	if !ok {
		return nil
	}

	l.totalBufferBytes.Add(int64(payload.ContentSize))
	l.totalRecoveryBytes.Add(payload.BytesWritten)
	l.recoverySaveEvents.Add(1)

	l.logger.Debug("Recovery save processed",
		"id", payload.ID,
		"chunks", payload.ChunkCount,
		"buffer_bytes", payload.ContentSize,
		"bytes_written", payload.BytesWritten,
	)
	return nil
}

// Priority defines the execution order. Lower numbers run first.
func (l *WriteRatioListener) Priority() int {
	return 100
}

// IsAsync indicates this listener can run in the background.
func (l *WriteRatioListener) IsAsync() bool {
	return true
}
