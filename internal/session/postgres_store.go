package session

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists archived-session summaries in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed archive store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the session_archives table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_archives (
			id               VARCHAR(36) PRIMARY KEY,
			user_id          VARCHAR(128) NOT NULL,
			start_time       TIMESTAMPTZ NOT NULL,
			end_time         TIMESTAMPTZ NOT NULL,
			reason           VARCHAR(16) NOT NULL,
			keystroke_count  INTEGER NOT NULL DEFAULT 0,
			pointer_count    INTEGER NOT NULL DEFAULT 0,
			sample_count     INTEGER NOT NULL DEFAULT 0,
			anomaly_count    INTEGER NOT NULL DEFAULT 0,
			mean_risk        DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_risk         DOUBLE PRECISION NOT NULL DEFAULT 0,
			final_risk       DOUBLE PRECISION NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_session_archives_user ON session_archives(user_id, end_time DESC);
	`)
	return err
}

func (p *PostgresStore) SaveArchive(ctx context.Context, a *Archived) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO session_archives (id, user_id, start_time, end_time, reason,
			keystroke_count, pointer_count, sample_count, anomaly_count,
			mean_risk, max_risk, final_risk)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.UserID, a.StartTime, a.EndTime, string(a.Reason),
		a.KeystrokeCount, a.PointerCount, a.SampleCount, a.AnomalyCount,
		a.MeanRisk, a.MaxRisk, a.FinalRisk)
	return err
}

func (p *PostgresStore) ListArchives(ctx context.Context, userID string, limit int) ([]*Archived, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, start_time, end_time, reason,
			keystroke_count, pointer_count, sample_count, anomaly_count,
			mean_risk, max_risk, final_risk
		FROM session_archives WHERE user_id = $1 ORDER BY end_time DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var archives []*Archived
	for rows.Next() {
		a := &Archived{}
		var reason string
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.StartTime, &a.EndTime, &reason,
			&a.KeystrokeCount, &a.PointerCount, &a.SampleCount, &a.AnomalyCount,
			&a.MeanRisk, &a.MaxRisk, &a.FinalRisk,
		); err != nil {
			return nil, err
		}
		a.Reason = EndReason(reason)
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

// DeleteOlderThan prunes archives whose end time is before the cutoff and
// returns the number of rows removed.
func (p *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM session_archives WHERE end_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
