package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGStore keeps documents as JSONB rows in a single PostgreSQL table.
type PGStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and creates the
// documents table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := NewPGStore(db)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Init creates the documents table.
func (s *PGStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return decodeRow(id, body)
}

func (s *PGStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, body FROM documents WHERE collection = $1`)

	for _, f := range q.Where {
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(val))
		fmt.Fprintf(&b, ` AND body -> $%d::text = $%d::jsonb`, len(args)-1, len(args))
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		args = append(args, q.OrderBy)
		fmt.Fprintf(&b, ` ORDER BY body -> $%d::text %s, id`, len(args), dir)
	} else {
		b.WriteString(` ORDER BY id`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeRow(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PGStore) Insert(ctx context.Context, collection string, data map[string]any) (Document, error) {
	doc, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	delete(doc, "id")
	body, err := json.Marshal(doc)
	if err != nil {
		return Document{}, err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(body))
	if err != nil {
		return Document{}, mapPGError(collection, err)
	}
	return Document{ID: id, Data: doc}, nil
}

// Put stores doc under its own id, replacing any existing document.
func (s *PGStore) Put(ctx context.Context, collection string, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("put %s: empty document id", collection)
	}
	data, err := normalize(doc.Data)
	if err != nil {
		return err
	}
	delete(data, "id")
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body`,
		collection, doc.ID, string(body))
	return mapPGError(collection, err)
}

func (s *PGStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := normalize(fields)
	if err != nil {
		return err
	}
	delete(patch, "id")
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET body = body || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, string(body))
	if err != nil {
		return mapPGError(collection, err)
	}
	return expectRow(res)
}

func (s *PGStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// EnsureUnique creates a partial expression index enforcing uniqueness of
// field within collection. Both names must be plain identifiers.
func (s *PGStore) EnsureUnique(ctx context.Context, collection, field string) error {
	if !identRe.MatchString(collection) || !identRe.MatchString(field) {
		return fmt.Errorf("invalid index name %s.%s", collection, field)
	}
	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON documents ((body ->> %s)) WHERE collection = %s`,
		pq.QuoteIdentifier("documents_"+collection+"_"+field+"_key"),
		pq.QuoteLiteral(field),
		pq.QuoteLiteral(collection),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return mapPGError(collection, err)
	}
	return nil
}

func (s *PGStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		list = append(list, name)
	}
	return list, rows.Err()
}

func decodeRow(id string, body []byte) (Document, error) {
	data := make(map[string]any)
	if err := json.Unmarshal(body, &data); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return Document{ID: id, Data: data}, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapPGError(collection string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %s: %w", collection, pqErr.Constraint, ErrDuplicate)
	}
	return err
}

var (
	_ Store    = (*PGStore)(nil)
	_ Importer = (*PGStore)(nil)
)
