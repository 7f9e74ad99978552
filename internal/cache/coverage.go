// Package cache keeps computed coverage reports in Redis so dashboard polls
// don't recompute the aggregation on every request. Entries expire on a TTL
// and are invalidated whenever a student's attendance changes.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"classtrack/internal/attendance"
)

// Coverage is a Redis-backed coverage report cache.
type Coverage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCoverage connects to Redis with short timeouts.
func NewCoverage(addr string, ttl time.Duration) *Coverage {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Coverage{client: client, ttl: ttl}
}

// Healthy verifies Redis connectivity.
func (c *Coverage) Healthy(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

// Client exposes the underlying connection for queue reuse.
func (c *Coverage) Client() *redis.Client { return c.client }

func key(studentID string) string { return "classtrack:coverage:" + studentID }

// Get returns a cached report, or false on miss or any Redis error; a
// degraded cache must never block a report.
func (c *Coverage) Get(ctx context.Context, studentID string) (attendance.Coverage, bool) {
	body, err := c.client.Get(ctx, key(studentID)).Bytes()
	if err != nil {
		return attendance.Coverage{}, false
	}
	var cov attendance.Coverage
	if err := json.Unmarshal(body, &cov); err != nil {
		return attendance.Coverage{}, false
	}
	return cov, true
}

// Set stores a report with the configured TTL. Errors are dropped for the
// same reason Get's are.
func (c *Coverage) Set(ctx context.Context, studentID string, cov attendance.Coverage) {
	body, err := json.Marshal(cov)
	if err != nil {
		return
	}
	c.client.Set(ctx, key(studentID), body, c.ttl)
}

// Invalidate drops a student's cached report.
func (c *Coverage) Invalidate(ctx context.Context, studentID string) {
	c.client.Del(ctx, key(studentID))
}

// InvalidateAll drops every cached report, used when a session deletion
// changes totals for every student.
func (c *Coverage) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, "classtrack:coverage:*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
