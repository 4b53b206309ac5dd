// Package store provides document persistence behind the schemas.DocumentStore
// interface: a PostgreSQL implementation for shared deployments and a local
// file implementation for single-user editing.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
)

// ErrNotFound is returned when no document with the requested name exists.
var ErrNotFound = errors.New("store: document not found")

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore persists documents as jsonb rows keyed by document name.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres creates a store instance and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS documents (
		name       TEXT PRIMARY KEY,
		content    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
`

// EnsureSchema creates the documents table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Save upserts the document under its name. The stored content is the
// canonical marshalled form, so a stored document round-trips byte-identical.
func (s *PostgresStore) Save(ctx context.Context, doc *schemas.Document) error {
	if doc == nil || doc.Name == "" {
		return fmt.Errorf("store: document must have a name")
	}
	content, err := document.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %q: %w", doc.Name, err)
	}

	sql := `
		INSERT INTO documents (name, content, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, sql, doc.Name, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.Name, err)
	}
	s.log.Debug("Document saved", zap.String("name", doc.Name), zap.Int("bytes", len(content)))
	return nil
}

// Load fetches a document by name. Missing documents return ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, name string) (*schemas.Document, error) {
	var content []byte
	row := s.pool.QueryRow(ctx, `SELECT content FROM documents WHERE name = $1;`, name)
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load document %q: %w", name, err)
	}

	doc, perr := document.Parse(content)
	if perr != nil {
		return nil, fmt.Errorf("stored document %q is corrupt: %w", name, perr)
	}
	return doc, nil
}

// List returns the names of all stored documents in lexical order.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM documents ORDER BY name ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan document name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return names, nil
}
