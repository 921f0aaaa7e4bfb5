// Package confsync is the out-of-band configuration channel: it places a full
// engine configuration document on the engine host's durable storage,
// independent of the live control connection. An engine that restarts
// mid-push comes back up already holding the new configuration, because the
// durable write always happens before any live-transport push.
package confsync

import (
	"context"
	"fmt"
)

// Syncer writes one complete configuration document to the engine host.
// Pushes are idempotent full-file overwrites, never diffs.
type Syncer interface {
	Push(ctx context.Context, doc []byte) error
	// Target describes the destination for logs and diagnostics.
	Target() string
}

// SyncError reports a failed durable push. Callers on the start path treat it
// as fatal only when the live transport push also failed; an engine that
// restarts re-reads its config file on its own.
type SyncError struct {
	Target string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("config sync to %s: %v", e.Target, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
