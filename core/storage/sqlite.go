package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/schema"
	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
)

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// IDField is the document field holding the identifier.
	IDField string

	// Synchronous is the durability level: OFF, NORMAL (default) or FULL.
	Synchronous string
}

// SQLiteStore implements Store with one JSON-document table per resource.
// Unique fields get unique expression indexes, so SQLite rejects conflicting
// writes that raced past validation.
type SQLiteStore struct {
	db      *sql.DB
	idField string

	mu        sync.RWMutex
	resources map[string]schema.Resource
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.IDField == "" {
		opts.IDField = convention.DefaultNames().ID
	}
	level := strings.ToUpper(opts.Synchronous)
	switch level {
	case "":
		level = "NORMAL"
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return nil, fmt.Errorf("invalid synchronous level %q", opts.Synchronous)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA synchronous = " + level,
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &SQLiteStore{
		db:        db,
		idField:   opts.IDField,
		resources: make(map[string]schema.Resource),
	}, nil
}

// EnsureResource creates the resource table and its unique indexes.
func (s *SQLiteStore) EnsureResource(ctx context.Context, res schema.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range BuildResourceSQL(res, s.idField) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare resource %s: %w", res.Name, err)
		}
	}

	s.resources[res.Name] = res
	return nil
}

// BuildResourceSQL generates the DDL for a resource.
func BuildResourceSQL(res schema.Resource, idField string) []string {
	table := convention.Table(res.Name)
	stmts := []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  id TEXT PRIMARY KEY,\n  body TEXT NOT NULL\n)",
		table,
	)}

	for _, field := range uniqueFields(res, idField) {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s(json_extract(body, '%s'))",
			table, field, table, jsonPath(field),
		))
	}

	return stmts
}

// jsonPath addresses a top-level key. Field names are validated identifiers.
func jsonPath(field string) string {
	return `$."` + field + `"`
}

func (s *SQLiteStore) known(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resources[resource]
	return ok
}

// FindOne returns the first document matching filter, or nil.
func (s *SQLiteStore) FindOne(ctx context.Context, resource string, filter Filter) (map[string]any, error) {
	if !s.known(resource) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	var (
		where []string
		args  []any
	)
	for field, value := range filter {
		arg, err := sqlValue(value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", field, err)
		}
		where = append(where, "json_extract(body, ?) IS ?")
		args = append(args, jsonPath(field), arg)
	}

	query := "SELECT body FROM " + convention.Table(resource)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " LIMIT 1"

	var body string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s: %w", resource, err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", resource, err)
	}
	return doc, nil
}

// sqlValue converts a filter value into something json_extract compares against.
// Objects and arrays come back from json_extract as minified JSON text.
func sqlValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64:
		return val, nil
	default:
		b, err := encodeBody(val)
		if err != nil {
			return nil, err
		}
		// Timestamps and other string-like values compare as plain text.
		if len(b) > 0 && b[0] == '"' {
			var str string
			if err := json.Unmarshal(b, &str); err != nil {
				return nil, err
			}
			return str, nil
		}
		return string(b), nil
	}
}

// encodeBody renders stored bodies and composite filter values alike, so
// json_extract output compares equal to the filter text.
func encodeBody(v any) ([]byte, error) {
	return json.MarshalNoEscape(v)
}

// Insert commits one document. Uniqueness conflicts surface as ErrDuplicate.
func (s *SQLiteStore) Insert(ctx context.Context, resource string, doc map[string]any) error {
	if !s.known(resource) {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	id, ok := doc[s.idField]
	if !ok || id == nil {
		return fmt.Errorf("insert %s: document has no %s", resource, s.idField)
	}

	body, err := encodeBody(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", resource, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+convention.Table(resource)+" (id, body) VALUES (?, ?)",
		fmt.Sprint(id), string(body),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("insert %s: %w: %v", resource, ErrDuplicate, err)
		}
		return fmt.Errorf("insert %s: %w", resource, err)
	}

	return nil
}

// Count returns the number of stored documents of a resource.
func (s *SQLiteStore) Count(ctx context.Context, resource string) (int, error) {
	if !s.known(resource) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+convention.Table(resource)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
