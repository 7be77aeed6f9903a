package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	replayKeyPrefix       = "notify:replay"
	defaultReplayCooldown = 15 * time.Minute
)

// ReplayGuard makes sure a failed log row is replayed at most once per cooldown window,
// across scans and across dispatcher instances. Claims are never released; they expire.
type ReplayGuard struct {
	client   goredis.Cmdable
	cooldown time.Duration
	now      func() time.Time
}

func NewReplayGuard(client goredis.Cmdable, cooldown time.Duration) (*ReplayGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cooldown <= 0 {
		cooldown = defaultReplayCooldown
	}

	return &ReplayGuard{client: client, cooldown: cooldown, now: time.Now}, nil
}

// Acquire claims logID. It returns false when another scan already claimed it.
func (g *ReplayGuard) Acquire(ctx context.Context, logID string) (bool, error) {
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return false, fmt.Errorf("log id is required")
	}

	key := fmt.Sprintf("%s:%s", replayKeyPrefix, logID)
	ok, err := g.client.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339Nano), g.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim replay for %s: %w", logID, err)
	}
	return ok, nil
}
