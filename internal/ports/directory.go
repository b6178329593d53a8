package ports

import (
	"context"

	"signalArmyBot/internal/domain"
)

// UserDirectory resolves the users a signal fans out to. The directory is an
// upstream collaborator: users, traders and credentials are maintained
// elsewhere, this core only reads them.
type UserDirectory interface {
	// ActiveSubscribers returns all currently active subscribed users of the
	// given trader, each carrying credential, capital allocation and risk
	// strategy.
	ActiveSubscribers(ctx context.Context, traderID int64) ([]*domain.User, error)

	// FindTrader looks up a trader by ID. Returns ErrNotFound if absent.
	FindTrader(ctx context.Context, traderID int64) (*domain.Trader, error)
}

// ResultSink receives each per-user ExecutionResult once its task finishes.
// Durability is the sink's concern; the core only guarantees the result's
// content and per-user isolation.
type ResultSink interface {
	Record(ctx context.Context, result *domain.ExecutionResult) error
}
