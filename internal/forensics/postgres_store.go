package forensics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mbd888/warden/internal/pagination"
)

// PostgresStore persists forensic records in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed forensic store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the forensic_records table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS forensic_records (
			id           VARCHAR(36) PRIMARY KEY,
			user_id      VARCHAR(128) NOT NULL,
			reason       VARCHAR(32) NOT NULL,
			captured_at  TIMESTAMPTZ NOT NULL,
			record       JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_forensic_records_user ON forensic_records(user_id, captured_at DESC);
		CREATE INDEX IF NOT EXISTS idx_forensic_records_reason ON forensic_records(reason);
	`)
	return err
}

func (p *PostgresStore) Write(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// append-only: an ID collision is rejected, never overwritten
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO forensic_records (id, user_id, reason, captured_at, record)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.UserID, string(rec.Reason), rec.CapturedAt, payload)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT record FROM forensic_records WHERE id = $1
	`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &Record{}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*Record, string, error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	var rows *sql.Rows
	if c != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT record FROM forensic_records
			WHERE user_id = $1 AND (captured_at, id) < ($2, $3)
			ORDER BY captured_at DESC, id DESC
			LIMIT $4
		`, userID, c.At, c.ID, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT record FROM forensic_records
			WHERE user_id = $1
			ORDER BY captured_at DESC, id DESC
			LIMIT $2
		`, userID, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, "", err
		}
		rec := &Record{}
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, "", err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	page, next, _ := pagination.ComputePage(records, limit, func(r *Record) (capturedAt time.Time, id string) {
		return r.CapturedAt, r.ID
	})
	return page, next, nil
}

func (p *PostgresStore) ListSince(ctx context.Context, since time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT record FROM forensic_records
		WHERE captured_at >= $1
		ORDER BY captured_at DESC, id DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec := &Record{}
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
