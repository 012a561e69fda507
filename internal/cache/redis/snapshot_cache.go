package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xness/riskcore/internal/domain"
)

const snapshotTTL = 30 * time.Second

// SnapshotCache mirrors the latest computed account snapshot in Redis so the
// websocket gateway can serve a status frame without recomputing.
type SnapshotCache struct {
	rdb *redis.Client
}

func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(accountID string) string {
	return "acct:" + accountID + ":snapshot"
}

func (sc *SnapshotCache) Set(ctx context.Context, accountID string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(accountID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", accountID, err)
	}
	return nil
}

func (sc *SnapshotCache) Get(ctx context.Context, accountID string) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", accountID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", accountID, err)
	}
	return snap, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
