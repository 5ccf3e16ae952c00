package entries

import (
	"fmt"
	"strings"
	"sync"
)

// Built-in record classes.
const (
	ClassGenericEntity       = "GenericEntity"
	ClassArtifactEntry       = "ArtifactEntry"
	ClassRemoteArtifactEntry = "RemoteArtifactEntry"
	ClassArtifactGroup       = "ArtifactGroup"
)

// Hierarchy records each class's super class. Classes missing from the
// hierarchy are treated as roots with no ancestors.
type Hierarchy struct {
	mu    sync.RWMutex
	super map[string]string
}

// DefaultHierarchy returns the built-in classes:
//
//	GenericEntity
//	├── ArtifactEntry
//	│   └── RemoteArtifactEntry
//	└── ArtifactGroup
func DefaultHierarchy() *Hierarchy {
	return &Hierarchy{super: map[string]string{
		ClassGenericEntity:       "",
		ClassArtifactEntry:       ClassGenericEntity,
		ClassRemoteArtifactEntry: ClassArtifactEntry,
		ClassArtifactGroup:       ClassGenericEntity,
	}}
}

// Define adds a class under an existing super class.
func (h *Hierarchy) Define(name, super string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("class name required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.super[name]; ok {
		return fmt.Errorf("class %s already defined", name)
	}
	if _, ok := h.super[super]; !ok {
		return fmt.Errorf("class %s: unknown super class %q", name, super)
	}
	h.super[name] = super
	return nil
}

// Ancestry lists name followed by its super classes up to the root.
func (h *Hierarchy) Ancestry(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := []string{name}
	for cur := name; ; {
		next, ok := h.super[cur]
		if !ok || next == "" || len(out) > len(h.super) {
			return out
		}
		out = append(out, next)
		cur = next
	}
}

// Extends reports whether name is ancestor or derives from it.
func (h *Hierarchy) Extends(name, ancestor string) bool {
	for _, c := range h.Ancestry(name) {
		if c == ancestor {
			return true
		}
	}
	return false
}
