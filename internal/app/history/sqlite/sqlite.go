package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	duration_secs REAL NOT NULL,
	chunks        INTEGER NOT NULL,
	text          TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_strategy ON sessions(strategy);
`

// SessionDB stores session history in a local sqlite file.
type SessionDB struct {
	db *sql.DB
}

func NewSessionDB(dbPath string) (*SessionDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath))
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to open history database %s", dbPath)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, apperrors.Wrapf(err, "failed to create sessions table")
	}
	return &SessionDB{db: db}, nil
}

func (s *SessionDB) Close() error {
	return s.db.Close()
}

func (s *SessionDB) Save(ctx context.Context, rec model.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, strategy, started_at, duration_secs, chunks, text, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.StartedAt, rec.DurationSecs, rec.Chunks, rec.Text, rec.ErrorMessage)
	if err != nil {
		return apperrors.Wrapf(err, "failed to save session %s", rec.ID)
	}
	return nil
}

func (s *SessionDB) List(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	query := `
		SELECT id, strategy, started_at, duration_secs, chunks, text, error_message
		FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to list sessions")
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SessionDB) FindByStrategy(ctx context.Context, strategy string) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, started_at, duration_secs, chunks, text, error_message
		FROM sessions WHERE strategy = ? ORDER BY started_at DESC`, strategy)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to query sessions by strategy %s", strategy)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]model.SessionRecord, error) {
	var records []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Strategy, &rec.StartedAt,
			&rec.DurationSecs, &rec.Chunks, &rec.Text, &rec.ErrorMessage); err != nil {
			return nil, apperrors.Wrapf(err, "failed to scan session row")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
