package coordinates

import (
	"path"
	"strings"

	"github.com/cordum/pkgvault/core/repoerr"
)

const rawPath = "path"

// RawCoordinates identifies an opaque file by its relative path.
type RawCoordinates struct {
	fields fieldSet
}

// NewRaw validates a relative path and wraps it as coordinates.
func NewRaw(p string) (*RawCoordinates, error) {
	c := &RawCoordinates{fields: defineFields(rawFieldNames...)}
	if err := c.SetPath(p); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseRaw accepts any clean relative path.
func ParseRaw(p string) (*RawCoordinates, error) {
	c, err := NewRaw(p)
	if err != nil {
		perr := repoerr.Parse(string(LayoutRaw), p, p, "expected a clean relative path")
		perr.Err = err
		return nil, perr
	}
	return c, nil
}

func (c *RawCoordinates) SetPath(p string) error {
	switch {
	case p == "":
		return repoerr.FieldValidation(string(LayoutRaw), rawPath, p, "path can't be empty")
	case strings.HasPrefix(p, "/"), strings.HasSuffix(p, "/"):
		return repoerr.FieldValidation(string(LayoutRaw), rawPath, p, "path must be relative and name a file")
	case strings.ContainsAny(p, "\\\x00"):
		return repoerr.FieldValidation(string(LayoutRaw), rawPath, p, "path contains illegal characters")
	case path.Clean(p) != p:
		return repoerr.FieldValidation(string(LayoutRaw), rawPath, p, "path is not in canonical form")
	case p == ".", p == "..", strings.HasPrefix(p, "../"):
		return repoerr.FieldValidation(string(LayoutRaw), rawPath, p, "path escapes the repository")
	}
	c.values().set(rawPath, p)
	return nil
}

func (c *RawCoordinates) Layout() Layout { return LayoutRaw }

// ID is the file name.
func (c *RawCoordinates) ID() string { return path.Base(c.Path()) }

// Version is always empty; raw files are unversioned.
func (c *RawCoordinates) Version() string { return "" }

func (c *RawCoordinates) Path() string { return c.values().get(rawPath) }

func (c *RawCoordinates) Fields() []Field { return c.values().fields() }

var rawFieldNames = []string{rawPath}

// values lets the zero value be used through its setters.
func (c *RawCoordinates) values() *fieldSet {
	if c.fields.values == nil {
		c.fields = defineFields(rawFieldNames...)
	}
	return &c.fields
}
