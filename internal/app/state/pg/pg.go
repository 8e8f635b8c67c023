// Package pg provides a postgres-backed model state store for deployments
// that already run postgres for other data.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS model_states (
	model_id    TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	last_warmed TIMESTAMPTZ
);`

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with a lib/pq connection string, e.g.
// "host=localhost port=5432 user=speechpipe dbname=speechpipe sslmode=disable".
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open postgres state store")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to ping postgres state store")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to create model_states table")
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetState(ctx context.Context, modelID string) (model.StateInfo, error) {
	query := `SELECT model_id, state, reason, last_warmed FROM model_states WHERE model_id = $1`
	row := s.db.QueryRowContext(ctx, query, modelID)

	var info model.StateInfo
	var lastWarmed sql.NullTime
	err := row.Scan(&info.ModelID, &info.State, &info.Reason, &lastWarmed)
	if err == sql.ErrNoRows {
		return model.StateInfo{ModelID: modelID, State: model.StateNotDownloaded}, nil
	}
	if err != nil {
		return model.StateInfo{}, apperrors.Wrapf(err, "failed to read state for model %s", modelID)
	}
	if lastWarmed.Valid {
		info.LastWarmed = lastWarmed.Time
	}
	return info, nil
}

func (s *PostgresStore) SetState(ctx context.Context, modelID string, st model.State, reason string) error {
	var lastWarmed interface{}
	if st == model.StateReady {
		lastWarmed = time.Now()
	}

	upsert := `
INSERT INTO model_states (model_id, state, reason, last_warmed)
VALUES ($1, $2, $3, $4)
ON CONFLICT (model_id) DO UPDATE SET
	state = EXCLUDED.state,
	reason = EXCLUDED.reason,
	last_warmed = COALESCE(EXCLUDED.last_warmed, model_states.last_warmed);`
	if _, err := s.db.ExecContext(ctx, upsert, modelID, string(st), reason, lastWarmed); err != nil {
		return apperrors.Wrapf(err, "failed to persist state for model %s", modelID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.StateInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model_id, state, reason, last_warmed FROM model_states ORDER BY model_id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list model states")
	}
	defer rows.Close()

	states := make([]model.StateInfo, 0)
	for rows.Next() {
		var info model.StateInfo
		var lastWarmed sql.NullTime
		if err := rows.Scan(&info.ModelID, &info.State, &info.Reason, &lastWarmed); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan model state row")
		}
		if lastWarmed.Valid {
			info.LastWarmed = lastWarmed.Time
		}
		states = append(states, info)
	}
	return states, rows.Err()
}
