// Package coordinates converts between repository storage paths and
// structured, ecosystem-specific artifact coordinates.
//
// The set of layouts is closed: Maven 2, npm and Raw. Parse dispatches over
// that set explicitly, so adding a layout means touching the switch below and
// Layouts.
package coordinates

import (
	"github.com/cordum/pkgvault/core/repoerr"
)

// Layout identifies the path convention of a package ecosystem.
type Layout string

const (
	LayoutMaven2 Layout = "Maven 2"
	LayoutNpm    Layout = "npm"
	LayoutRaw    Layout = "Raw"
)

// Coordinates is a structured artifact identifier within a layout.
type Coordinates interface {
	Layout() Layout
	// ID is the layout's artifact identifier (artifactId, package name, ...).
	ID() string
	Version() string
	// Path formats the canonical storage path. It never fails for
	// coordinates that passed field validation.
	Path() string
	// Fields returns the defined fields in declaration order.
	Fields() []Field
}

// Field is a single named coordinate value.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Layouts returns every supported layout in a stable order.
func Layouts() []Layout {
	return []Layout{LayoutMaven2, LayoutNpm, LayoutRaw}
}

// ParseLayout maps a configured layout identifier onto the closed set.
func ParseLayout(id string) (Layout, error) {
	switch Layout(id) {
	case LayoutMaven2, LayoutNpm, LayoutRaw:
		return Layout(id), nil
	default:
		return "", repoerr.UnknownLayout(id)
	}
}

// Parse converts a storage path into coordinates for the given layout.
func Parse(layout Layout, path string) (Coordinates, error) {
	switch layout {
	case LayoutMaven2:
		return ParseMaven2(path)
	case LayoutNpm:
		return ParseNpm(path)
	case LayoutRaw:
		return ParseRaw(path)
	default:
		return nil, repoerr.UnknownLayout(string(layout))
	}
}

// fieldSet is the ordered name -> value mapping backing every variant.
// Names are fixed when the set is defined; values are only stored after the
// owning variant validated them.
type fieldSet struct {
	names  []string
	values map[string]string
}

func defineFields(names ...string) fieldSet {
	return fieldSet{names: names, values: make(map[string]string, len(names))}
}

func (f *fieldSet) get(name string) string {
	return f.values[name]
}

func (f *fieldSet) set(name, value string) {
	if value == "" {
		delete(f.values, name)
		return
	}
	f.values[name] = value
}

func (f *fieldSet) fields() []Field {
	out := make([]Field, 0, len(f.names))
	for _, name := range f.names {
		out = append(out, Field{Name: name, Value: f.values[name]})
	}
	return out
}

// Equal compares two coordinates field by field.
func Equal(a, b Coordinates) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Layout() != b.Layout() {
		return false
	}
	fa, fb := a.Fields(), b.Fields()
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
