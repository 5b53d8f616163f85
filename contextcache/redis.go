package contextcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier backs the per-response tier with Redis so multiple orchestrator
// processes share the same cached responses. Grounded on the registry
// service's use of go-redis for TTL'd keys (there: result-stream
// expiration; here: response-cache expiration via SETEX).
type RedisTier struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTier wraps rdb for use as Cache's per-response backing store.
// keyPrefix namespaces keys so multiple deployments can share one Redis
// instance.
func NewRedisTier(rdb *redis.Client, keyPrefix string) *RedisTier {
	return &RedisTier{rdb: rdb, prefix: keyPrefix}
}

// Put stores entry under a TTL'd key derived from its composite identity.
func (t *RedisTier) Put(ctx context.Context, entry *Entry) error {
	key := t.prefix + responseKey(entry.ProjectID, entry.Query, entry.UserID, entry.Timestamp)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("contextcache: marshal entry: %w", err)
	}
	if err := t.rdb.Set(ctx, key, data, responseTTL).Err(); err != nil {
		return fmt.Errorf("contextcache: redis set %q: %w", key, err)
	}
	return nil
}

// Get retrieves a previously-Put entry by its composite key, or (nil,
// false) if absent or expired.
func (t *RedisTier) Get(ctx context.Context, projectID int, query, userID string, ts time.Time) (*Entry, bool, error) {
	key := t.prefix + responseKey(projectID, query, userID, ts)
	data, err := t.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("contextcache: redis get %q: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("contextcache: unmarshal entry: %w", err)
	}
	return &entry, true, nil
}
