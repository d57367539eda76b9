// Package history keeps the linear undo/redo log of one editing session.
package history

import "fmt"

// Entry is one committed document snapshot.
type Entry struct {
	Position int
	Document string
}

// History is a list of snapshots and a cursor into it. It is not safe for
// concurrent use; the owning session serializes access.
type History struct {
	entries  []Entry
	cursor   int
	validate func(string) error
}

// New starts a history whose only entry is initial. validate, when non-nil,
// guards every Commit.
func New(initial string, validate func(string) error) (*History, error) {
	if validate != nil {
		if err := validate(initial); err != nil {
			return nil, fmt.Errorf("history: initial document: %w", err)
		}
	}
	return &History{
		entries:  []Entry{{Position: 0, Document: initial}},
		validate: validate,
	}, nil
}

// Current returns the document under the cursor.
func (h *History) Current() string {
	return h.entries[h.cursor].Document
}

// Commit discards every entry after the cursor, appends doc and moves the
// cursor onto it. A rejected document leaves the history unchanged.
func (h *History) Commit(doc string) error {
	if h.validate != nil {
		if err := h.validate(doc); err != nil {
			return err
		}
	}
	h.entries = append(h.entries[:h.cursor+1], Entry{Position: h.cursor + 1, Document: doc})
	h.cursor++
	return nil
}

// Undo moves the cursor back one entry. It reports false at the start.
func (h *History) Undo() bool {
	if h.cursor == 0 {
		return false
	}
	h.cursor--
	return true
}

// Redo moves the cursor forward one entry. It reports false at the tail.
func (h *History) Redo() bool {
	if h.cursor >= len(h.entries)-1 {
		return false
	}
	h.cursor++
	return true
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Position is the cursor index, always in [0, Len()-1].
func (h *History) Position() int { return h.cursor }

// Len is the number of entries, including those ahead of the cursor.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the log.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}
