package profile

import (
	"context"
	"database/sql"
)

// PostgresBaselineStore implements BaselineStore backed by PostgreSQL.
type PostgresBaselineStore struct {
	db *sql.DB
}

// Compile-time check.
var _ BaselineStore = (*PostgresBaselineStore)(nil)

// NewPostgresBaselineStore creates a new Postgres-backed baseline store.
func NewPostgresBaselineStore(db *sql.DB) *PostgresBaselineStore {
	return &PostgresBaselineStore{db: db}
}

// Migrate creates the risk_baselines table.
func (s *PostgresBaselineStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_baselines (
			user_id       VARCHAR(128) PRIMARY KEY,
			mean_risk     DOUBLE PRECISION NOT NULL,
			stddev_risk   DOUBLE PRECISION NOT NULL,
			session_count INTEGER NOT NULL,
			sample_count  INTEGER NOT NULL,
			anomaly_rate  DOUBLE PRECISION NOT NULL,
			last_updated  TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *PostgresBaselineStore) SaveBaselineBatch(ctx context.Context, baselines []*UserBaseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_baselines (user_id, mean_risk, stddev_risk, session_count, sample_count, anomaly_rate, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			mean_risk     = EXCLUDED.mean_risk,
			stddev_risk   = EXCLUDED.stddev_risk,
			session_count = EXCLUDED.session_count,
			sample_count  = EXCLUDED.sample_count,
			anomaly_rate  = EXCLUDED.anomaly_rate,
			last_updated  = EXCLUDED.last_updated
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range baselines {
		_, err := stmt.ExecContext(ctx,
			b.UserID,
			b.MeanRisk,
			b.StddevRisk,
			b.SessionCount,
			b.SampleCount,
			b.AnomalyRate,
			b.LastUpdated,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresBaselineStore) GetAllBaselines(ctx context.Context) ([]*UserBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, mean_risk, stddev_risk, session_count, sample_count, anomaly_rate, last_updated
		FROM risk_baselines
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*UserBaseline
	for rows.Next() {
		b := &UserBaseline{}
		if err := rows.Scan(
			&b.UserID, &b.MeanRisk, &b.StddevRisk,
			&b.SessionCount, &b.SampleCount, &b.AnomalyRate, &b.LastUpdated,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
