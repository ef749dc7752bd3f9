package store

import (
	"context"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// Store defines the persistence interface for session state. The
// engine emits snapshots and append-only logs; it does not own the
// wire format.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, sessionID string, snap model.SessionSnapshot) error
	LatestSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)

	// Append-only logs
	AppendDecision(ctx context.Context, sessionID string, rec model.DecisionRecord) error
	ListDecisions(ctx context.Context, sessionID string, limit int) ([]model.DecisionRecord, error)
	AppendAlert(ctx context.Context, sessionID string, rec model.AlertRecord) error
	ListAlerts(ctx context.Context, sessionID string, limit int) ([]model.AlertRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
