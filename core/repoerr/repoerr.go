// Package repoerr defines the typed failures returned by the layout,
// validation and persistence layers.
//
// Every failure is an *Error carrying a Kind plus enough context to render
// an actionable message. Callers match on kind with errors.Is against the
// exported sentinels:
//
//	if errors.Is(err, repoerr.ErrArtifactNotFound) {
//	    // already gone
//	}
package repoerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a failure class.
type Kind string

const (
	KindParse                Kind = "ParseError"
	KindFieldValidation      Kind = "FieldValidationError"
	KindUnknownLayout        Kind = "UnknownLayoutError"
	KindPathResolution       Kind = "PathResolutionError"
	KindArtifactNotFound     Kind = "ArtifactNotFoundError"
	KindForceRequired        Kind = "ForceRequiredError"
	KindArtifactSizeExceeded Kind = "ArtifactSizeExceededError"
	KindEmptyArtifact        Kind = "EmptyArtifactError"
	KindMissingIdentifier    Kind = "MissingIdentifierError"
	KindMissingPath          Kind = "MissingPathError"
	KindPathMismatch         Kind = "PathMismatchError"
	KindRepositoryNotFound   Kind = "RepositoryNotFoundError"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrParse                = &Error{Kind: KindParse}
	ErrFieldValidation      = &Error{Kind: KindFieldValidation}
	ErrUnknownLayout        = &Error{Kind: KindUnknownLayout}
	ErrPathResolution       = &Error{Kind: KindPathResolution}
	ErrArtifactNotFound     = &Error{Kind: KindArtifactNotFound}
	ErrForceRequired        = &Error{Kind: KindForceRequired}
	ErrArtifactSizeExceeded = &Error{Kind: KindArtifactSizeExceeded}
	ErrEmptyArtifact        = &Error{Kind: KindEmptyArtifact}
	ErrMissingIdentifier    = &Error{Kind: KindMissingIdentifier}
	ErrMissingPath          = &Error{Kind: KindMissingPath}
	ErrPathMismatch         = &Error{Kind: KindPathMismatch}
	ErrRepositoryNotFound   = &Error{Kind: KindRepositoryNotFound}
)

// Error is a structured failure. Fields not relevant to a kind stay zero.
type Error struct {
	Kind Kind
	Msg  string

	StorageID    string
	RepositoryID string
	Layout       string
	// Path is the offending path; Other is the second path of a mismatch.
	Path  string
	Other string
	Field string
	Value string
	Limit int64
	Size  int64

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Parse reports a path that does not match a layout grammar.
func Parse(layout, path, segment, reason string) *Error {
	msg := fmt.Sprintf("illegal %s artifact path [%s]", layout, path)
	if segment != "" {
		msg += fmt.Sprintf(", segment [%s]", segment)
	}
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{Kind: KindParse, Msg: msg, Layout: layout, Path: path, Value: segment}
}

// FieldValidation reports a coordinate field that violates its grammar.
func FieldValidation(layout, field, value, reason string) *Error {
	return &Error{
		Kind:   KindFieldValidation,
		Msg:    fmt.Sprintf("invalid %s %s [%s]: %s", layout, field, value, reason),
		Layout: layout,
		Field:  field,
		Value:  value,
	}
}

func UnknownLayout(layout string) *Error {
	return &Error{Kind: KindUnknownLayout, Msg: fmt.Sprintf("no layout provider registered for [%s]", layout), Layout: layout}
}

// PathResolution reports a path that cannot be resolved inside a repository.
func PathResolution(storageID, repositoryID, path, reason string) *Error {
	return &Error{
		Kind:         KindPathResolution,
		Msg:          fmt.Sprintf("path [%s] in %s:%s: %s", path, storageID, repositoryID, reason),
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Path:         path,
	}
}

func ArtifactNotFound(storageID, repositoryID, path string) *Error {
	return &Error{
		Kind:         KindArtifactNotFound,
		Msg:          fmt.Sprintf("artifact [%s] not found in %s:%s", path, storageID, repositoryID),
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Path:         path,
	}
}

// ForceRequired reports a bulk directory delete that needs explicit force.
func ForceRequired(storageID, repositoryID, path string, versions int) *Error {
	return &Error{
		Kind:         KindForceRequired,
		Msg:          fmt.Sprintf("directory [%s] in %s:%s holds %d artifact versions; force deletion required", path, storageID, repositoryID, versions),
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Path:         path,
		Size:         int64(versions),
	}
}

func ArtifactSizeExceeded(storageID, repositoryID string, limit, size int64) *Error {
	return &Error{
		Kind:         KindArtifactSizeExceeded,
		Msg:          fmt.Sprintf("artifact size %d exceeds the maximum of %d bytes for %s:%s", size, limit, storageID, repositoryID),
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Limit:        limit,
		Size:         size,
	}
}

func EmptyArtifact(storageID, repositoryID string, size int64) *Error {
	return &Error{
		Kind:         KindEmptyArtifact,
		Msg:          fmt.Sprintf("artifact for %s:%s is empty (size %d)", storageID, repositoryID, size),
		StorageID:    storageID,
		RepositoryID: repositoryID,
		Size:         size,
	}
}

// MissingIdentifier reports a record without a uuid. class names the
// record's schema class.
func MissingIdentifier(class string) *Error {
	return &Error{Kind: KindMissingIdentifier, Msg: fmt.Sprintf("failed to persist [%s]: uuid can't be empty", class)}
}

func MissingPath(class string) *Error {
	return &Error{Kind: KindMissingPath, Msg: fmt.Sprintf("failed to persist [%s]: artifact path can't be empty", class)}
}

// PathMismatch names both the entry path and the coordinates path.
func PathMismatch(class, entryPath, coordinatesPath string) *Error {
	return &Error{
		Kind:  KindPathMismatch,
		Msg:   fmt.Sprintf("failed to persist [%s]: paths [%s] and [%s] don't match", class, entryPath, coordinatesPath),
		Path:  entryPath,
		Other: coordinatesPath,
	}
}

func RepositoryNotFound(storageID, repositoryID string) *Error {
	return &Error{
		Kind:         KindRepositoryNotFound,
		Msg:          fmt.Sprintf("repository %s:%s is not configured", storageID, repositoryID),
		StorageID:    storageID,
		RepositoryID: repositoryID,
	}
}
