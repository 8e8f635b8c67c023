// Package sqlite provides the default durable model state store.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS model_states (
	model_id    TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	last_warmed TIMESTAMP
);`

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the state database at dbFilePath.
func NewSQLiteStore(dbFilePath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbFilePath)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to open state database %s", dbFilePath)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to create model_states table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetState(ctx context.Context, modelID string) (model.StateInfo, error) {
	query := `SELECT model_id, state, reason, last_warmed FROM model_states WHERE model_id = ?`
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

func (s *SQLiteStore) SetState(ctx context.Context, modelID string, st model.State, reason string) error {
	var lastWarmed interface{}
	if st == model.StateReady {
		lastWarmed = time.Now()
	}

	// Single UPSERT so the write commits atomically and survives restart.
	upsert := `
INSERT INTO model_states (model_id, state, reason, last_warmed)
VALUES (?, ?, ?, ?)
ON CONFLICT(model_id) DO UPDATE SET
	state = excluded.state,
	reason = excluded.reason,
	last_warmed = COALESCE(excluded.last_warmed, model_states.last_warmed);`
	if _, err := s.db.ExecContext(ctx, upsert, modelID, string(st), reason, lastWarmed); err != nil {
		return apperrors.Wrapf(err, "failed to persist state for model %s", modelID)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.StateInfo, error) {
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
