// Package history keeps a SQLite log of chart lookups served by the API.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/paipan/internal/logging"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("lookup not found")

// DBFileName is the database file created under the storage root.
const DBFileName = "history.db"

// Kinds of lookup.
const (
	KindBaZi   = "bazi"
	KindLiuYao = "liuyao"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Lookup is one stored chart request and its parsed result. Query and
// Result are kept as raw JSON so the store does not depend on chart types.
type Lookup struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Query     json.RawMessage `json:"query"`
	Result    json.RawMessage `json:"result"`
	CreatedAt int64           `json:"created_at"`
}

// Store persists lookups in SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	owned  bool
}

// NewStore runs the embedded schema against db.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "history"})}, nil
}

// Open creates rootDir if needed and opens rootDir/history.db. The returned
// store owns the database handle and closes it on Close.
func Open(rootDir string, logger logging.Logger) (*Store, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir is required")
	}
	rootDir = filepath.Clean(rootDir)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure rootDir %s: %w", rootDir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(rootDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Add stores a lookup. query and result are marshaled to JSON.
func (s *Store) Add(ctx context.Context, kind string, query, result any) (*Lookup, error) {
	if kind == "" {
		return nil, fmt.Errorf("kind is required")
	}
	q, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	r, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	l := &Lookup{
		ID:        uuid.New().String(),
		Kind:      kind,
		Query:     q,
		Result:    r,
		CreatedAt: time.Now().UnixNano(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lookups (id, kind, query, result, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.Kind, string(l.Query), string(l.Result), l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert lookup: %w", err)
	}

	s.logger.Debug("lookup stored", logging.Field{Key: "id", Value: l.ID}, logging.Field{Key: "kind", Value: kind})
	return l, nil
}

// Get returns one lookup by id.
func (s *Store) Get(ctx context.Context, id string) (*Lookup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, query, result, created_at
         FROM lookups
         WHERE id = ?
         LIMIT 1`,
		id,
	)
	l, err := scanLookup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// List returns up to limit lookups, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Lookup, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, query, result, created_at
         FROM lookups
         ORDER BY created_at DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Lookup{}
	for rows.Next() {
		l, err := scanLookup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLookup(sc scanner) (*Lookup, error) {
	var l Lookup
	var q, r string
	if err := sc.Scan(&l.ID, &l.Kind, &q, &r, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Query = json.RawMessage(q)
	l.Result = json.RawMessage(r)
	return &l, nil
}
