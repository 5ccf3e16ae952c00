package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in an "entries" table.
type SQLiteStore struct {
	*guard
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{guard: newGuard("sqlite", opts), db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate entries: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	statements := []string{`
	CREATE TABLE IF NOT EXISTS entries (
		uuid TEXT PRIMARY KEY,
		class TEXT NOT NULL,
		storage_id TEXT NOT NULL,
		repository_id TEXT NOT NULL,
		artifact_path TEXT NOT NULL DEFAULT '',
		coordinates JSON,
		size_in_bytes INTEGER NOT NULL DEFAULT 0,
		created TEXT NOT NULL
	);`, `
	CREATE UNIQUE INDEX IF NOT EXISTS entries_path
		ON entries (storage_id, repository_id, artifact_path)
		WHERE artifact_path <> '';`,
	}
	for _, query := range statements {
		if _, err := s.db.ExecContext(context.Background(), query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) (Record, error) {
	return s.create(ctx, rec, func(ctx context.Context, rec Record) error {
		coords, err := marshalCoordinates(rec.Coordinates)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO entries (
			uuid, class, storage_id, repository_id, artifact_path, coordinates, size_in_bytes, created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.UUID, rec.Class, rec.StorageID, rec.RepositoryID, rec.ArtifactPath, coords,
			rec.SizeInBytes, rec.Created.UTC().Format(time.RFC3339Nano),
		)
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "artifact_path") {
				return fmt.Errorf("%w: path %s", ErrExists, rec.ArtifactPath)
			}
			return fmt.Errorf("%w: %s", ErrExists, rec.UUID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		return nil
	})
}

const selectEntry = `
	SELECT uuid, class, storage_id, repository_id, artifact_path, coordinates, size_in_bytes, created
	FROM entries`

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE uuid = ?`, id)
	return scanEntry(row, id)
}

func (s *SQLiteStore) FindByPath(ctx context.Context, storageID, repositoryID, path string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		selectEntry+` WHERE storage_id = ? AND repository_id = ? AND artifact_path = ?`,
		storageID, repositoryID, path)
	return scanEntry(row, path)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE uuid = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) Repair(ctx context.Context, id string, fn func(rec *Record) error) (Record, error) {
	return s.repair(ctx, id, fn, s.Get, func(ctx context.Context, _, updated Record) error {
		coords, err := marshalCoordinates(updated.Coordinates)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `UPDATE entries SET
			class = ?, storage_id = ?, repository_id = ?, artifact_path = ?, coordinates = ?, size_in_bytes = ?
			WHERE uuid = ?`,
			updated.Class, updated.StorageID, updated.RepositoryID, updated.ArtifactPath, coords,
			updated.SizeInBytes, id,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: path %s", ErrExists, updated.ArtifactPath)
		}
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, key string) (Record, error) {
	var (
		rec     Record
		coords  sql.NullString
		created string
	)
	err := row.Scan(&rec.UUID, &rec.Class, &rec.StorageID, &rec.RepositoryID, &rec.ArtifactPath, &coords, &rec.SizeInBytes, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan entry: %w", err)
	}
	if coords.Valid && coords.String != "" {
		var c CoordinatesRecord
		if err := json.Unmarshal([]byte(coords.String), &c); err != nil {
			return Record{}, fmt.Errorf("decode coordinates of %s: %w", rec.UUID, err)
		}
		rec.Coordinates = &c
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.Created = t
	}
	return rec, nil
}

func marshalCoordinates(c *CoordinatesRecord) (any, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal coordinates: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
