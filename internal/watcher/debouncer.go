package watcher

import (
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxPending bounds the coalescing map. A mass operation (branch switch,
// vault restore) can touch more files than this; evicted entries flush
// immediately instead of being dropped.
const maxPending = 4096

// Debouncer coalesces rapid events per path so one save does not trigger
// several reindexes. Changes for the same path within the window merge:
//
//	created  + modified = created   (file is still new)
//	created  + deleted  = nothing   (file never really existed)
//	modified + deleted  = deleted   (file is gone)
//	deleted  + created  = modified  (file was replaced)
type Debouncer struct {
	window   time.Duration
	mu       sync.Mutex
	pending  *lru.Cache[string, *pendingChange]
	output   chan []FileChange
	timer    *time.Timer
	flushing bool
	stopped  bool
}

type pendingChange struct {
	change    FileChange
	firstKind ChangeKind
}

// NewDebouncer creates a debouncer with the given coalescing window.
func NewDebouncer(window time.Duration, bufferSize int) *Debouncer {
	d := &Debouncer{
		window: window,
		output: make(chan []FileChange, bufferSize),
	}
	// Eviction under pressure emits the oldest entry right away rather
	// than losing it. The callback runs while d.mu is held by Add.
	cache, err := lru.NewWithEvict[string, *pendingChange](maxPending,
		func(path string, pc *pendingChange) {
			// Purge during a regular flush also fires this callback;
			// those entries were already collected.
			if d.stopped || d.flushing {
				return
			}
			d.emit([]FileChange{pc.change})
		})
	if err != nil {
		// Only possible with a non-positive size.
		panic(err)
	}
	d.pending = cache
	return d
}

// Add records an event, coalescing with any pending change for the path.
func (d *Debouncer) Add(change FileChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending.Get(change.Path); ok {
		merged, keep := coalesce(existing, change)
		if !keep {
			d.pending.Remove(change.Path)
			return
		}
		existing.change = merged
	} else {
		d.pending.Add(change.Path, &pendingChange{
			change:    change,
			firstKind: change.Kind,
		})
	}
	d.scheduleFlush()
}

// coalesce merges a new change into a pending one. The second return is
// false when the two cancel out.
func coalesce(existing *pendingChange, incoming FileChange) (FileChange, bool) {
	switch existing.firstKind {
	case KindCreated:
		switch incoming.Kind {
		case KindModified:
			// Still a brand-new file from the index's point of view.
			kept := existing.change
			kept.Timestamp = incoming.Timestamp
			return kept, true
		case KindDeleted:
			return FileChange{}, false
		}
	case KindDeleted:
		if incoming.Kind == KindCreated {
			incoming.Kind = KindModified
			return incoming, true
		}
	}
	return incoming, true
}

func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.pending.Len() == 0 {
		return
	}

	changes := make([]FileChange, 0, d.pending.Len())
	for _, path := range d.pending.Keys() {
		if pc, ok := d.pending.Peek(path); ok {
			changes = append(changes, pc.change)
		}
	}
	d.flushing = true
	d.pending.Purge()
	d.flushing = false
	d.emit(changes)
}

// emit sends without blocking; the caller holds d.mu.
func (d *Debouncer) emit(changes []FileChange) {
	select {
	case d.output <- changes:
	default:
		slog.Warn("debouncer_output_full",
			slog.Int("dropped", len(changes)))
	}
}

// Output returns the channel of coalesced change batches.
func (d *Debouncer) Output() <-chan []FileChange {
	return d.output
}

// Stop halts the debouncer and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
