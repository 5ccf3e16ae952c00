// Package entries persists ArtifactEntry records behind pre-create hooks
// that keep a record's path and coordinates consistent.
package entries

import (
	"time"

	"github.com/cordum/pkgvault/core/coordinates"
	"github.com/google/uuid"
)

// CoordinatesRecord is the persisted form of artifact coordinates.
type CoordinatesRecord struct {
	Layout string              `json:"layout"`
	Path   string              `json:"path"`
	Fields []coordinates.Field `json:"fields,omitempty"`
}

// Record is one persisted entry.
type Record struct {
	UUID         string             `json:"uuid"`
	Class        string             `json:"class"`
	StorageID    string             `json:"storage_id"`
	RepositoryID string             `json:"repository_id"`
	ArtifactPath string             `json:"artifact_path"`
	Coordinates  *CoordinatesRecord `json:"artifact_coordinates,omitempty"`
	SizeInBytes  int64              `json:"size_in_bytes"`
	Created      time.Time          `json:"created"`
}

// NewArtifactEntry builds an ArtifactEntry record for c with a fresh uuid.
func NewArtifactEntry(storageID, repositoryID string, c coordinates.Coordinates, size int64) Record {
	rec := Record{
		UUID:         uuid.NewString(),
		Class:        ClassArtifactEntry,
		StorageID:    storageID,
		RepositoryID: repositoryID,
		SizeInBytes:  size,
		Created:      time.Now().UTC(),
	}
	if c != nil {
		rec.ArtifactPath = c.Path()
		rec.Coordinates = FromCoordinates(c)
	}
	return rec
}

// FromCoordinates snapshots c for persistence.
func FromCoordinates(c coordinates.Coordinates) *CoordinatesRecord {
	if c == nil {
		return nil
	}
	return &CoordinatesRecord{
		Layout: string(c.Layout()),
		Path:   c.Path(),
		Fields: c.Fields(),
	}
}

// Clone returns a deep copy, so hooks and callers never share the
// coordinates sub-record with the store.
func (r Record) Clone() Record {
	if r.Coordinates != nil {
		c := *r.Coordinates
		c.Fields = append([]coordinates.Field(nil), r.Coordinates.Fields...)
		r.Coordinates = &c
	}
	return r
}
