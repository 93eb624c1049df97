// Package history keeps a bounded timeline of diagram snapshots with an
// undo/redo cursor.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-editorstate"
	"github.com/goliatone/go-editorstate/pkg/state"
)

// MaxEntries is the default number of entries kept.
const MaxEntries = 100

// DefaultRef is where Save and Restore keep the timeline unless told otherwise.
var DefaultRef = state.Ref{Namespace: "history", Key: "default"}

// Entry is one recorded snapshot.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Mermaid   string    `json:"mermaid,omitempty"`
	Label     string    `json:"label"`
}

// Option configures a History.
type Option func(*History)

// WithMaxEntries bounds the timeline; older entries are discarded first.
func WithMaxEntries(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.max = n
		}
	}
}

// WithClock overrides the time source used for timestamps and labels.
func WithClock(now func() time.Time) Option {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// History is safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	entries  []Entry
	index    int
	lastCode string
	max      int
	now      func() time.Time
}

// New returns an empty History.
func New(opts ...Option) *History {
	h := &History{
		index: -1,
		max:   MaxEntries,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Add records code and mermaid as a new entry after the cursor, discarding any
// redo tail. Blank code and code equal to the last recorded entry are ignored.
// An empty label is replaced by the entry time.
func (h *History) Add(code, label, mermaid string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if strings.TrimSpace(code) == "" || code == h.lastCode {
		return Entry{}, false
	}
	h.lastCode = code

	now := h.now()
	if label == "" {
		label = timeLabel(now)
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Code:      code,
		Mermaid:   mermaid,
		Label:     label,
	}

	past := h.entries[:h.index+1]
	updated := append(append(make([]Entry, 0, len(past)+1), past...), entry)
	if len(updated) > h.max {
		updated = updated[len(updated)-h.max:]
	}
	h.entries = updated
	h.index = len(updated) - 1
	return entry, true
}

// Undo moves the cursor back and returns the entry it lands on.
func (h *History) Undo() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index <= 0 {
		return Entry{}, false
	}
	h.index--
	return h.entries[h.index], true
}

// Redo moves the cursor forward and returns the entry it lands on.
func (h *History) Redo() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index >= len(h.entries)-1 {
		return Entry{}, false
	}
	h.index++
	return h.entries[h.index], true
}

// CanUndo reports whether Undo would move the cursor.
func (h *History) CanUndo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index > 0
}

// CanRedo reports whether Redo would move the cursor.
func (h *History) CanRedo() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index < len(h.entries)-1
}

// Index returns the cursor position, -1 when empty.
func (h *History) Index() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index
}

// Entries returns a copy of the timeline, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Entry(nil), h.entries...)
}

// Lookup returns the entry with id.
func (h *History) Lookup(id string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, entry := range h.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Remove deletes the entry with id. The cursor keeps pointing at the same
// entry when it survives.
func (h *History) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, entry := range h.entries {
		if entry.ID != id {
			continue
		}
		h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
		if i <= h.index {
			h.index--
		}
		if h.index < 0 && len(h.entries) > 0 {
			h.index = 0
		}
		return true
	}
	return false
}

// Clear drops every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	h.index = -1
	h.lastCode = ""
}

// Source publishes editor state, as *editorstate.Engine does.
type Source interface {
	Subscribe(fn func(editorstate.State)) func()
}

// Track records every state src publishes under label. The returned function
// stops tracking.
func (h *History) Track(src Source, label string) func() {
	if src == nil {
		return func() {}
	}
	return src.Subscribe(func(s editorstate.State) {
		h.Add(s.Code, label, s.Mermaid)
	})
}

// Save writes the timeline to store under ref, or DefaultRef when ref is
// empty.
func (h *History) Save(ctx context.Context, store state.Store[[]Entry], ref state.Ref) (state.Meta, error) {
	if store == nil {
		return state.Meta{}, fmt.Errorf("history: store is nil")
	}
	if ref.Key == "" {
		ref = DefaultRef
	}
	meta, err := store.Save(ctx, ref, h.Entries(), state.Meta{})
	if err != nil {
		return state.Meta{}, fmt.Errorf("history: save: %w", err)
	}
	return meta, nil
}

// Restore rebuilds a History from store. A missing timeline yields an empty
// History.
func Restore(ctx context.Context, store state.Store[[]Entry], ref state.Ref, opts ...Option) (*History, error) {
	h := New(opts...)
	if store == nil {
		return nil, fmt.Errorf("history: store is nil")
	}
	if ref.Key == "" {
		ref = DefaultRef
	}
	entries, _, ok, err := store.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("history: restore: %w", err)
	}
	if !ok {
		return h, nil
	}
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	h.entries = append([]Entry(nil), entries...)
	h.index = len(h.entries) - 1
	if h.index >= 0 {
		h.lastCode = h.entries[h.index].Code
	}
	return h, nil
}

func timeLabel(t time.Time) string {
	return t.Format("Jan 2, 03:04 PM")
}
