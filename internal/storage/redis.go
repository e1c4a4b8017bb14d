package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jodete-online/jodete-server/internal/game"
)

const (
	roomMatchKeyPrefix   = "jodete:match:room:"
	matchKeyPrefix       = "jodete:match:"
	actionsKeySuffix     = ":actions"
	playerStatsKeyPrefix = "jodete:player:stats:"

	// Finished matches stay queryable for a month; the room binding only
	// needs to outlive the room itself.
	matchTTL     = 30 * 24 * time.Hour
	roomMatchTTL = 24 * time.Hour
)

// RedisGateway stores matches and player stats in Redis.
type RedisGateway struct {
	client *redis.Client
}

// NewRedisGateway wraps an already-connected client.
func NewRedisGateway(client *redis.Client) *RedisGateway {
	return &RedisGateway{client: client}
}

func roomMatchKey(roomID string) string { return roomMatchKeyPrefix + roomID }
func matchKey(matchID string) string    { return matchKeyPrefix + matchID }
func actionsKey(matchID string) string  { return matchKeyPrefix + matchID + actionsKeySuffix }
func statsKey(userID string) string     { return playerStatsKeyPrefix + userID }

func (g *RedisGateway) StartMatch(ctx context.Context, roomID string, snap *game.Snapshot) (string, error) {
	matchID := uuid.NewString()
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := g.client.TxPipeline()
	pipe.Set(ctx, roomMatchKey(roomID), matchID, roomMatchTTL)
	pipe.Set(ctx, matchKey(matchID), data, matchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("start match %s: %w", matchID, err)
	}
	return matchID, nil
}

func (g *RedisGateway) CurrentMatch(ctx context.Context, roomID string) (string, error) {
	matchID, err := g.client.Get(ctx, roomMatchKey(roomID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve match for room %s: %w", roomID, err)
	}
	return matchID, nil
}

func (g *RedisGateway) SaveSnapshot(ctx context.Context, matchID string, snap *game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := g.client.Set(ctx, matchKey(matchID), data, matchTTL).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", matchID, err)
	}
	return nil
}

func (g *RedisGateway) AppendAction(ctx context.Context, matchID string, rec *game.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	pipe := g.client.TxPipeline()
	pipe.RPush(ctx, actionsKey(matchID), data)
	pipe.Expire(ctx, actionsKey(matchID), matchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append action to %s: %w", matchID, err)
	}
	return nil
}

func (g *RedisGateway) UpdatePlayerStats(ctx context.Context, update game.StatsUpdate) error {
	if update.UserID == "" {
		return nil
	}
	key := statsKey(update.UserID)
	pipe := g.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "games_played", 1)
	if update.Won {
		pipe.HIncrBy(ctx, key, "games_won", 1)
	}
	pipe.HIncrBy(ctx, key, "jodetes_called", int64(update.JodetesCalled))
	pipe.HIncrBy(ctx, key, "jodetes_received", int64(update.JodetesReceived))
	pipe.HIncrBy(ctx, key, "play_seconds", int64(update.PlayDurationSeconds))
	for value, count := range update.SpecialPlayed {
		pipe.HIncrBy(ctx, key, fmt.Sprintf("special_%d", value), int64(count))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update stats for %s: %w", update.UserID, err)
	}
	return nil
}

// LoadSnapshot reads a stored match back. Used by admin tooling and
// tests; the game loop itself never reads from Redis.
func (g *RedisGateway) LoadSnapshot(ctx context.Context, matchID string) (*game.Snapshot, error) {
	data, err := g.client.Get(ctx, matchKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", matchID, err)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", matchID, err)
	}
	return &snap, nil
}

// PlayerStats reads a player's lifetime counters.
func (g *RedisGateway) PlayerStats(ctx context.Context, userID string) (map[string]string, error) {
	stats, err := g.client.HGetAll(ctx, statsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load stats for %s: %w", userID, err)
	}
	return stats, nil
}

func (g *RedisGateway) Close() error {
	return g.client.Close()
}
