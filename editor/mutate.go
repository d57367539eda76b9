package editor

import (
	"context"
	"strconv"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/journal"
)

// EditKind selects what an Edit changes.
type EditKind string

const (
	EditText      EditKind = "text"
	EditAttribute EditKind = "attribute"
	EditStyle     EditKind = "style"
)

// Edit is one change to one element. Key is the attribute name for
// EditAttribute and the CSS property for EditStyle; it is ignored for
// EditText. Remove deletes the attribute or declaration instead of setting it.
type Edit struct {
	Identity string   `json:"identity"`
	Kind     EditKind `json:"kind"`
	Key      string   `json:"key,omitempty"`
	Value    string   `json:"value,omitempty"`
	Remove   bool     `json:"remove,omitempty"`
}

// ApplyEdit runs one edit through parse, locate, change, render and commit.
// Either the whole new document is committed as one history entry or the
// session is left as it was.
func (s *Session) ApplyEdit(ctx context.Context, e Edit) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ev := journal.Event{Identity: e.Identity, Key: e.Key}
	op := "edit_" + string(e.Kind)
	doc := s.hist.Current()

	var (
		out string
		err error
	)
	switch e.Kind {
	case EditText:
		if e.Remove {
			out, err = htmldoc.SetText(doc, e.Identity, "")
		} else {
			out, err = htmldoc.SetText(doc, e.Identity, e.Value)
		}
	case EditAttribute:
		if e.Remove {
			out, err = htmldoc.RemoveAttribute(doc, e.Identity, e.Key)
		} else {
			out, err = htmldoc.SetAttribute(doc, e.Identity, e.Key, e.Value)
		}
	case EditStyle:
		if e.Remove {
			out, err = htmldoc.RemoveStyleProperty(doc, e.Identity, e.Key)
		} else {
			out, err = htmldoc.SetStyleProperty(doc, e.Identity, e.Key, e.Value)
		}
	default:
		op = "edit"
		err = &htmldoc.InvalidEditError{Identity: e.Identity, Reason: "unknown edit kind " + strconv.Quote(string(e.Kind))}
	}
	if err != nil {
		return s.rejectLocked(ctx, op, err, ev)
	}
	return s.commitLocked(ctx, op, out, ev)
}

// InsertSpec describes an element dropped onto the canvas.
type InsertSpec struct {
	Parent    string         `json:"parent,omitempty"` // identity; empty means <body>
	Tag       string         `json:"tag"`
	Identity  string         `json:"identity,omitempty"`
	Text      string         `json:"text,omitempty"`
	InnerHTML string         `json:"inner_html,omitempty"`
	Attrs     []htmldoc.Attr `json:"attrs,omitempty"`
	Style     htmldoc.Style  `json:"style,omitempty"`
	// X and Y are drop coordinates relative to the canvas. When set the
	// element is absolutely positioned there.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

func (in InsertSpec) element() htmldoc.Element {
	style := append(htmldoc.Style(nil), in.Style...)
	if in.X != nil || in.Y != nil {
		style = style.Set("position", "absolute")
		if in.X != nil {
			style = style.Set("left", px(*in.X))
		}
		if in.Y != nil {
			style = style.Set("top", px(*in.Y))
		}
	}
	return htmldoc.Element{
		Tag:       in.Tag,
		Identity:  in.Identity,
		Text:      in.Text,
		InnerHTML: in.InnerHTML,
		Attrs:     in.Attrs,
		Style:     style,
	}
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// InsertElement appends a new element and commits. It returns the identity
// of the new element. An explicit identity must never have been used in the
// session, even by an element since removed.
func (s *Session) InsertElement(ctx context.Context, in InsertSpec) (string, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ev := journal.Event{Identity: in.Identity, Key: in.Tag}
	if in.Identity != "" {
		if _, used := s.issued[in.Identity]; used {
			st, err := s.rejectLocked(ctx, "insert", &htmldoc.InvalidEditError{Identity: in.Identity, Reason: "identity already issued in this session"}, ev)
			return "", st, err
		}
	}
	out, id, err := s.tagger.Insert(s.hist.Current(), in.Parent, in.element())
	if err != nil {
		st, err := s.rejectLocked(ctx, "insert", err, ev)
		return "", st, err
	}
	ev.Identity = id
	st, err := s.commitLocked(ctx, "insert", out, ev)
	if err != nil {
		return "", st, err
	}
	return id, st, nil
}

// RemoveElement deletes an element and its subtree.
func (s *Session) RemoveElement(ctx context.Context, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ev := journal.Event{Identity: id}
	out, err := htmldoc.RemoveElement(s.hist.Current(), id)
	if err != nil {
		return s.rejectLocked(ctx, "remove", err, ev)
	}
	return s.commitLocked(ctx, "remove", out, ev)
}

// ReplaceImage points an <img> at a new source.
func (s *Session) ReplaceImage(ctx context.Context, id, src string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ev := journal.Event{Identity: id, Key: "src"}
	if src == "" {
		return s.rejectLocked(ctx, "replace_image", &htmldoc.InvalidEditError{Identity: id, Reason: "empty image source"}, ev)
	}
	out, err := htmldoc.SetImageSource(s.hist.Current(), id, src)
	if err != nil {
		return s.rejectLocked(ctx, "replace_image", err, ev)
	}
	return s.commitLocked(ctx, "replace_image", out, ev)
}
