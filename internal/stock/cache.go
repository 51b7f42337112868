package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rollups is the cached slice of a list response: the aggregates that cost a
// full-table scan, not the filtered rows themselves.
type rollups struct {
	Summary           Summary                   `json:"summary"`
	CategoryBreakdown map[string]CategoryRollup `json:"categoryBreakdown"`
}

// SummaryCache keeps per-tenant ledger aggregates in Redis. Mutations
// invalidate; a miss falls through to the repository.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(tenantID string) string {
	return fmt.Sprintf("craftline:stock:summary:%s", tenantID)
}

func (c *SummaryCache) Get(ctx context.Context, tenantID string) (rollups, bool) {
	if c == nil || c.client == nil {
		return rollups{}, false
	}
	raw, err := c.client.Get(ctx, summaryKey(tenantID)).Bytes()
	if err != nil {
		return rollups{}, false
	}
	var r rollups
	if err := json.Unmarshal(raw, &r); err != nil {
		return rollups{}, false
	}
	return r, true
}

func (c *SummaryCache) Set(ctx context.Context, tenantID string, r rollups) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.client.Set(ctx, summaryKey(tenantID), raw, c.ttl)
}

func (c *SummaryCache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, summaryKey(tenantID))
}
