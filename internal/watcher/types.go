// Package watcher turns filesystem events under the vault into debounced,
// coalesced change notifications for the sync engine.
package watcher

import (
	"time"
)

// ChangeKind classifies a file change.
type ChangeKind int

const (
	// KindCreated indicates a new file appeared.
	KindCreated ChangeKind = iota
	// KindModified indicates an existing file changed.
	KindModified
	// KindDeleted indicates a file was removed.
	KindDeleted
)

// String returns a human-readable kind name.
func (k ChangeKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is one coalesced change to a vault file.
type FileChange struct {
	// Path is the absolute path of the changed file.
	Path string
	// Kind is the change classification after coalescing.
	Kind ChangeKind
	// Timestamp is when the last underlying event was seen.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long to coalesce events per path before
	// emitting (default: 1s). Editors often write a file several times
	// in quick succession.
	DebounceWindow time.Duration
	// EventBufferSize is the emitted-batch channel capacity (default: 64).
	EventBufferSize int
	// SkipDirs are directory names excluded from watching.
	SkipDirs map[string]bool
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = time.Second
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 64
	}
	return o
}
