// Package store persists named corridor polylines per (corridor, direction)
// in an embedded sqlite database. Corridor geometry is derived, reproducible
// data, so last-write-wins replacement is all the consistency offered.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/geo"
)

// ErrNotFound is returned when no corridor exists for a (name, direction)
// pair.
var ErrNotFound = errors.New("corridor not found")

// Corridor is a named route/direction pair with a road-following polyline.
type Corridor struct {
	Name      string
	Direction direction.Direction
	Line      geo.Polyline
	Bounds    geo.BoundingBox
	Source    string
	UpdatedAt time.Time
}

// Summary describes a stored corridor without its geometry payload.
type Summary struct {
	Name       string              `json:"name"`
	Direction  direction.Direction `json:"direction"`
	PointCount int                 `json:"pointCount"`
	Source     string              `json:"source"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS corridors (
	name       TEXT NOT NULL,
	direction  TEXT NOT NULL,
	points     TEXT NOT NULL,
	min_lat    REAL NOT NULL,
	min_lon    REAL NOT NULL,
	max_lat    REAL NOT NULL,
	max_lon    REAL NOT NULL,
	source     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (name, direction)
);`

// Store is a sqlite-backed corridor store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the corridor store at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open corridor store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize corridor schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert replaces any existing corridor for the same (name, direction).
func (s *Store) Upsert(ctx context.Context, c Corridor) error {
	if !c.Direction.Valid() {
		return fmt.Errorf("corridor %s: invalid direction %q", c.Name, c.Direction)
	}
	if !c.Line.Valid() {
		return fmt.Errorf("corridor %s: polyline must have at least 2 valid points", c.Name)
	}

	points, err := json.Marshal(c.Line.Points)
	if err != nil {
		return fmt.Errorf("failed to encode corridor points: %w", err)
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO corridors
		(name, direction, points, min_lat, min_lon, max_lat, max_lon, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, string(c.Direction), string(points),
		c.Bounds.MinLat, c.Bounds.MinLon, c.Bounds.MaxLat, c.Bounds.MaxLon,
		c.Source, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert corridor %s/%s: %w", c.Name, c.Direction, err)
	}
	return nil
}

// Get returns the corridor for the (name, direction) pair, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string, dir direction.Direction) (Corridor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, direction, points, min_lat, min_lon, max_lat, max_lon, source, updated_at
		FROM corridors WHERE name = ? AND direction = ?`,
		name, string(dir))

	c, err := scanCorridor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Corridor{}, ErrNotFound
	}
	return c, err
}

// Variants returns every stored direction of a named route, used to pick
// among parallel directional corridors.
func (s *Store) Variants(ctx context.Context, name string) ([]Corridor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, direction, points, min_lat, min_lon, max_lat, max_lon, source, updated_at
		FROM corridors WHERE name = ? ORDER BY direction`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query corridor variants: %w", err)
	}
	defer rows.Close()

	var corridors []Corridor
	for rows.Next() {
		c, err := scanCorridor(rows)
		if err != nil {
			return nil, err
		}
		corridors = append(corridors, c)
	}
	return corridors, rows.Err()
}

// All returns every stored corridor with full geometry, ordered by name and
// direction. Used for KML export.
func (s *Store) All(ctx context.Context) ([]Corridor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, direction, points, min_lat, min_lon, max_lat, max_lon, source, updated_at
		FROM corridors ORDER BY name, direction`)
	if err != nil {
		return nil, fmt.Errorf("failed to query corridors: %w", err)
	}
	defer rows.Close()

	var corridors []Corridor
	for rows.Next() {
		c, err := scanCorridor(rows)
		if err != nil {
			return nil, err
		}
		corridors = append(corridors, c)
	}
	return corridors, rows.Err()
}

// List returns summaries of all stored corridors.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, direction, points, source, updated_at
		FROM corridors ORDER BY name, direction`)
	if err != nil {
		return nil, fmt.Errorf("failed to list corridors: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			s1        Summary
			dir       string
			points    string
			updatedAt time.Time
		)
		if err := rows.Scan(&s1.Name, &dir, &points, &s1.Source, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan corridor summary: %w", err)
		}
		var pts []geo.Point
		if err := json.Unmarshal([]byte(points), &pts); err != nil {
			return nil, fmt.Errorf("corrupt corridor points for %s: %w", s1.Name, err)
		}
		s1.Direction = direction.Direction(dir)
		s1.PointCount = len(pts)
		s1.UpdatedAt = updatedAt
		summaries = append(summaries, s1)
	}
	return summaries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorridor(row rowScanner) (Corridor, error) {
	var (
		c      Corridor
		dir    string
		points string
	)
	err := row.Scan(&c.Name, &dir, &points,
		&c.Bounds.MinLat, &c.Bounds.MinLon, &c.Bounds.MaxLat, &c.Bounds.MaxLon,
		&c.Source, &c.UpdatedAt)
	if err != nil {
		return Corridor{}, err
	}

	c.Direction = direction.Direction(dir)
	if err := json.Unmarshal([]byte(points), &c.Line.Points); err != nil {
		return Corridor{}, fmt.Errorf("corrupt corridor points for %s: %w", c.Name, err)
	}
	return c, nil
}
