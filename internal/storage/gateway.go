package storage

import (
	"context"

	"github.com/jodete-online/jodete-server/internal/game"
)

// Gateway persists match history and player statistics. Implementations
// are called from the storage writer goroutine only; gameplay never
// blocks on them and their errors are logged, not propagated.
type Gateway interface {
	// StartMatch allocates a durable match id for the room and stores the
	// opening snapshot. Any previous room→match binding is replaced.
	StartMatch(ctx context.Context, roomID string, snap *game.Snapshot) (string, error)
	// CurrentMatch resolves the room's active match id, or "" when none.
	CurrentMatch(ctx context.Context, roomID string) (string, error)
	// SaveSnapshot overwrites the stored snapshot for the match.
	SaveSnapshot(ctx context.Context, matchID string, snap *game.Snapshot) error
	// AppendAction adds one record to the match's action history.
	AppendAction(ctx context.Context, matchID string, rec *game.ActionRecord) error
	// UpdatePlayerStats folds one player's match deltas into lifetime
	// totals. Updates without a user id are ignored.
	UpdatePlayerStats(ctx context.Context, update game.StatsUpdate) error
	// Close releases the underlying connection.
	Close() error
}

// NoopGateway discards everything. Used when Redis is disabled or down,
// so rooms keep working without persistence.
type NoopGateway struct{}

func (NoopGateway) StartMatch(context.Context, string, *game.Snapshot) (string, error) {
	return "", nil
}

func (NoopGateway) CurrentMatch(context.Context, string) (string, error) { return "", nil }

func (NoopGateway) SaveSnapshot(context.Context, string, *game.Snapshot) error { return nil }

func (NoopGateway) AppendAction(context.Context, string, *game.ActionRecord) error { return nil }

func (NoopGateway) UpdatePlayerStats(context.Context, game.StatsUpdate) error { return nil }

func (NoopGateway) Close() error { return nil }
