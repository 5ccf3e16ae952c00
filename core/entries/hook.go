package entries

import (
	"context"
	"strings"

	"github.com/cordum/pkgvault/core/repoerr"
)

// Hook runs synchronously before a record is made durable. A non-nil error
// vetoes the write. Hooks receive a copy and cannot change what is stored.
type Hook interface {
	BeforeCreate(ctx context.Context, rec Record) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, rec Record) error

func (f HookFunc) BeforeCreate(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// InvariantHook enforces identity on every record and path agreement on the
// ArtifactEntry family.
type InvariantHook struct {
	classes *Hierarchy
}

func NewInvariantHook(classes *Hierarchy) *InvariantHook {
	if classes == nil {
		classes = DefaultHierarchy()
	}
	return &InvariantHook{classes: classes}
}

func (h *InvariantHook) BeforeCreate(_ context.Context, rec Record) error {
	if strings.TrimSpace(rec.UUID) == "" {
		return repoerr.MissingIdentifier(rec.Class)
	}
	if !h.classes.Extends(rec.Class, ClassArtifactEntry) {
		return nil
	}

	var coordinatesPath string
	if rec.Coordinates != nil {
		coordinatesPath = rec.Coordinates.Path
	}
	entryPath := strings.TrimSpace(rec.ArtifactPath)
	if strings.TrimSpace(coordinatesPath) == "" && entryPath == "" {
		return repoerr.MissingPath(rec.Class)
	}
	// Byte equality on purpose: no case or separator normalization.
	if rec.Coordinates != nil && entryPath != coordinatesPath {
		return repoerr.PathMismatch(rec.Class, entryPath, coordinatesPath)
	}
	return nil
}
