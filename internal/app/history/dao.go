// Package history persists finished recording sessions for later review and
// export.
package history

import (
	"context"

	"speechpipe/internal/app/model"
)

type SessionDAO interface {
	Close() error

	// Save records one finished session.
	Save(ctx context.Context, rec model.SessionRecord) error

	// List returns the most recent sessions, newest first. limit <= 0 means
	// no limit.
	List(ctx context.Context, limit int) ([]model.SessionRecord, error)

	// FindByStrategy returns sessions finished by the named strategy.
	FindByStrategy(ctx context.Context, strategy string) ([]model.SessionRecord, error)
}
