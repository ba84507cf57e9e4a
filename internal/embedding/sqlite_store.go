package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// SQLite limits bound variables per statement; stay well below it.
const (
	selectChunk = 400
	insertChunk = 250
)

// SQLiteStore keeps vectors as JSON in an embeddings table.
type SQLiteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(db),
	}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		vector_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, text_hash)
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create embeddings table failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, model string, keys []string) (map[string][]float64, error) {
	out := make(map[string][]float64, len(keys))
	for start := 0; start < len(keys); start += selectChunk {
		chunk := keys[start:min(start+selectChunk, len(keys))]
		rows, err := s.sb.Select("text_hash", "vector_json").
			From("embeddings").
			Where(sq.Eq{"model": model, "text_hash": chunk}).
			QueryContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("query embeddings failed: %w", err)
		}
		if err := scanVectors(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanVectors(rows *sql.Rows, out map[string][]float64) error {
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("scan embedding failed: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return fmt.Errorf("decode embedding %s failed: %w", key, err)
		}
		out[key] = vec
	}
	return rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, model string, entries map[string][]float64) error {
	if len(entries) == 0 {
		return nil
	}
	insert := s.newInsert()
	n := 0
	for key, vec := range entries {
		raw, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("encode embedding failed: %w", err)
		}
		insert = insert.Values(model, key, string(raw))
		n++
		if n%insertChunk == 0 || n == len(entries) {
			if _, err := insert.ExecContext(ctx); err != nil {
				return fmt.Errorf("insert embeddings failed: %w", err)
			}
			insert = s.newInsert()
		}
	}
	return nil
}

func (s *SQLiteStore) newInsert() sq.InsertBuilder {
	return s.sb.Insert("embeddings").
		Columns("model", "text_hash", "vector_json").
		Suffix("ON CONFLICT(model, text_hash) DO UPDATE SET vector_json = excluded.vector_json")
}
