package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS manuscripts (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	manuscript_id TEXT NOT NULL REFERENCES manuscripts(id) ON DELETE CASCADE,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	PRIMARY KEY (manuscript_id, key)
);
CREATE TABLE IF NOT EXISTS verses (
	manuscript_id TEXT NOT NULL REFERENCES manuscripts(id) ON DELETE CASCADE,
	ordinal       INTEGER NOT NULL,
	verse         TEXT NOT NULL,
	text          TEXT NOT NULL,
	PRIMARY KEY (manuscript_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_verses_verse ON verses(manuscript_id, verse);
`

// SQLiteStore persists manuscripts in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and if needed creates) the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.OpenStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open manuscript store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get loads a manuscript with its metadata and verses.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Manuscript, error) {
	m := &Manuscript{ID: id}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, created_at FROM manuscripts WHERE id = ?`, id).Scan(&m.Filename, &created)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("manuscript", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load manuscript %s: %w", id, err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("manuscript %s: bad created_at %q: %w", id, created, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE manuscript_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		if m.Metadata == nil {
			m.Metadata = make(map[string]string)
		}
		m.Metadata[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT verse, text FROM verses WHERE manuscript_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("load verses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Verse
		if err := rows.Scan(&v.ID, &v.Text); err != nil {
			return nil, err
		}
		m.Verses = append(m.Verses, v)
	}
	return m, rows.Err()
}

// List returns summaries ordered by creation time, then ID.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.filename, m.created_at,
		       (SELECT COUNT(*) FROM verses v WHERE v.manuscript_id = m.id)
		FROM manuscripts m
		ORDER BY m.created_at, m.id`)
	if err != nil {
		return nil, fmt.Errorf("list manuscripts: %w", err)
	}
	defer rows.Close()

	var ids []string
	var out []Summary
	for rows.Next() {
		var sum Summary
		var created string
		if err := rows.Scan(&sum.ID, &sum.Filename, &created, &sum.VerseCount); err != nil {
			return nil, err
		}
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		ids = append(ids, sum.ID)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	// Sigla depend on metadata; resolve them once the listing cursor is closed,
	// since the store runs on a single connection.
	for i, id := range ids {
		meta, err := s.metadata(ctx, id)
		if err != nil {
			return nil, err
		}
		m := Manuscript{ID: id, Filename: out[i].Filename, Metadata: meta}
		out[i].Sigla = m.Sigla()
	}
	return out, nil
}

func (s *SQLiteStore) metadata(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE manuscript_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Put inserts or replaces a manuscript in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, m *Manuscript) (string, error) {
	if m == nil {
		return "", errors.NewValidation("manuscript", "nil manuscript")
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM manuscripts WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("replace manuscript: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manuscripts (id, filename, created_at) VALUES (?, ?, ?)`,
		id, m.Filename, created.Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("insert manuscript: %w", err)
	}
	for k, v := range m.Metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (manuscript_id, key, value) VALUES (?, ?, ?)`, id, k, v); err != nil {
			return "", fmt.Errorf("insert metadata %q: %w", k, err)
		}
	}
	for i, v := range m.Verses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO verses (manuscript_id, ordinal, verse, text) VALUES (?, ?, ?, ?)`,
			id, i, v.ID, v.Text); err != nil {
			return "", fmt.Errorf("insert verse %s: %w", v.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a manuscript and, by cascade, its metadata and verses.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manuscripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete manuscript %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("manuscript", id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
