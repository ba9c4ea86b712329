package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

// RegistryRepository persists the per-user document registry. (user_id,
// file_name) is the primary key; a duplicate insert is a no-op, which is what
// makes re-uploads idempotent at the storage level.
type RegistryRepository struct {
	db *sql.DB
}

func NewRegistryRepository(db *sql.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RegistryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS user_documents (
	user_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, file_name)
);

CREATE INDEX IF NOT EXISTS idx_user_documents_user ON user_documents(user_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RegistryRepository) Register(ctx context.Context, record *domain.DocumentRecord) error {
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO user_documents (user_id, file_name, tags, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, file_name) DO NOTHING
`, record.UserID, record.FileName, tagsJSON, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document record: %w", err)
	}
	return nil
}

func (r *RegistryRepository) AlreadyRegistered(ctx context.Context, userID, fileName string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM user_documents WHERE user_id = $1 AND file_name = $2)
`, userID, fileName)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("scan registered flag: %w", err)
	}
	return exists, nil
}

func (r *RegistryRepository) ListDocuments(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT file_name FROM user_documents WHERE user_id = $1 ORDER BY file_name
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query document names: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan document name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document names: %w", err)
	}
	return names, nil
}

func (r *RegistryRepository) ListRecords(ctx context.Context, userID string) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, file_name, tags, created_at FROM user_documents WHERE user_id = $1 ORDER BY file_name
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query document records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.DocumentRecord, 0)
	for rows.Next() {
		var record domain.DocumentRecord
		var tagsRaw []byte
		if err := rows.Scan(&record.UserID, &record.FileName, &tagsRaw, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document record: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &record.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document records: %w", err)
	}
	return records, nil
}
