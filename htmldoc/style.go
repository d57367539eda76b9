package htmldoc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aymerick/douceur/parser"
)

// Declaration is one inline CSS declaration.
type Declaration struct {
	Property  string `json:"property"`
	Value     string `json:"value"`
	Important bool   `json:"important,omitempty"`
}

// Style is the ordered list of declarations of a style attribute.
type Style []Declaration

// ParseStyle parses the value of a style attribute.
func ParseStyle(s string) (Style, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	// douceur only keeps a declaration's value once it sees its terminator.
	decls, err := parser.ParseDeclarations(strings.TrimRight(s, "; \t\n") + ";")
	if err != nil {
		return nil, err
	}
	out := make(Style, 0, len(decls))
	for _, d := range decls {
		out = out.Set(d.Property, d.Value)
		if d.Important {
			out[out.index(d.Property)].Important = true
		}
	}
	return out, nil
}

func (s Style) index(prop string) int {
	prop = normProp(prop)
	for i, d := range s {
		if d.Property == prop {
			return i
		}
	}
	return -1
}

// Get returns the value of prop.
func (s Style) Get(prop string) (string, bool) {
	if i := s.index(prop); i >= 0 {
		return s[i].Value, true
	}
	return "", false
}

// Set returns s with prop set to value. An existing declaration keeps its
// position; a new one is appended. A trailing "!important" is honoured.
func (s Style) Set(prop, value string) Style {
	value = strings.TrimSpace(value)
	important := false
	if v, ok := strings.CutSuffix(value, "!important"); ok {
		value, important = strings.TrimSpace(v), true
	}
	d := Declaration{Property: normProp(prop), Value: value, Important: important}
	if i := s.index(prop); i >= 0 {
		s[i] = d
		return s
	}
	return append(s, d)
}

// Remove returns s without prop.
func (s Style) Remove(prop string) Style {
	if i := s.index(prop); i >= 0 {
		return append(s[:i], s[i+1:]...)
	}
	return s
}

// String renders s as a style attribute value: "color: red; left: 10px".
func (s Style) String() string {
	parts := make([]string, 0, len(s))
	for _, d := range s {
		p := d.Property + ": " + d.Value
		if d.Important {
			p += " !important"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

// CheckDeclaration reports whether prop and value form exactly one
// declaration: no terminators or blocks smuggled in either part.
func CheckDeclaration(prop, value string) error {
	if strings.TrimSpace(prop) == "" {
		return errors.New("empty style property")
	}
	if strings.ContainsAny(prop, ":;{} \t\n") {
		return fmt.Errorf("malformed style property %q", prop)
	}
	if strings.ContainsAny(value, ";{}") {
		return fmt.Errorf("style value %q holds more than one declaration", value)
	}
	return nil
}

func normProp(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
