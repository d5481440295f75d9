// Package cache provides a two-tier cache for role default permission sets.
//
// Lookups go to an in-process expirable LRU first, then Redis, then the
// loader (normally the role store). Concurrent misses for the same role are
// collapsed with singleflight. Redis is optional: with a nil client the
// cache runs on the LRU alone, and Redis errors are logged and treated as
// misses so the database remains the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
)

// Loader fetches the default permission set of a role from the source of
// truth. It returns an apperrors not-found error for unknown roles.
type Loader func(ctx context.Context, orgID int64, slug string) (permissions.Set, error)

// Config controls cache sizing and expiry
type Config struct {
	L1Size    int
	L1TTL     time.Duration
	RedisTTL  time.Duration
	KeyPrefix string
}

// DefaultConfig returns the settings used when none are configured.
// Invalidate reaches only the local LRU and Redis, so L1TTL bounds how long
// another process keeps serving the defaults of an edited role.
func DefaultConfig() Config {
	return Config{
		L1Size:    1024,
		L1TTL:     5 * time.Second,
		RedisTTL:  10 * time.Minute,
		KeyPrefix: "warden:role",
	}
}

// RoleDefaults caches role default permission sets per organization
type RoleDefaults struct {
	l1      *lru.LRU[string, permissions.Set]
	redis   *redis.Client
	loader  Loader
	group   singleflight.Group
	config  Config
	metrics *observability.Metrics
}

// NewRoleDefaults creates a role defaults cache. rdb and metrics may be nil.
func NewRoleDefaults(config Config, rdb *redis.Client, loader Loader, metrics *observability.Metrics) *RoleDefaults {
	defaults := DefaultConfig()
	if config.L1Size <= 0 {
		config.L1Size = defaults.L1Size
	}
	if config.L1TTL <= 0 {
		config.L1TTL = defaults.L1TTL
	}
	if config.RedisTTL <= 0 {
		config.RedisTTL = defaults.RedisTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	return &RoleDefaults{
		l1:      lru.NewLRU[string, permissions.Set](config.L1Size, nil, config.L1TTL),
		redis:   rdb,
		loader:  loader,
		config:  config,
		metrics: metrics,
	}
}

func (c *RoleDefaults) key(orgID int64, slug string) string {
	return fmt.Sprintf("%s:%d:%s", c.config.KeyPrefix, orgID, slug)
}

// Get returns the default permissions of the role. The returned set is a
// copy and may be modified by the caller.
func (c *RoleDefaults) Get(ctx context.Context, orgID int64, slug string) (permissions.Set, error) {
	key := c.key(orgID, slug)

	if set, ok := c.l1.Get(key); ok {
		c.metrics.RecordCache("l1", true)
		return set.Clone(), nil
	}
	c.metrics.RecordCache("l1", false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if set, ok := c.getRedis(ctx, key); ok {
			c.l1.Add(key, set)
			return set, nil
		}

		set, err := c.loader(ctx, orgID, slug)
		if err != nil {
			return nil, err
		}
		c.l1.Add(key, set)
		c.setRedis(ctx, key, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(permissions.Set).Clone(), nil
}

func (c *RoleDefaults) getRedis(ctx context.Context, key string) (permissions.Set, bool) {
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.metrics.RecordCache("redis", false)
		return nil, false
	} else if err != nil {
		observability.FromContext(ctx).WithError(err).WithField("key", key).Warn("role cache read failed")
		c.metrics.RecordCache("redis", false)
		return nil, false
	}

	var set permissions.Set
	if err := json.Unmarshal(data, &set); err != nil {
		c.redis.Del(ctx, key)
		c.metrics.RecordCache("redis", false)
		return nil, false
	}

	c.metrics.RecordCache("redis", true)
	return set, true
}

func (c *RoleDefaults) setRedis(ctx context.Context, key string, set permissions.Set) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.RedisTTL).Err(); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("key", key).Warn("role cache write failed")
	}
}

// Invalidate drops a single role from both tiers
func (c *RoleDefaults) Invalidate(ctx context.Context, orgID int64, slug string) error {
	key := c.key(orgID, slug)
	c.l1.Remove(key)
	c.group.Forget(key)

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate role %s: %w", slug, err)
	}
	return nil
}

// InvalidateOrg drops every cached role of the organization
func (c *RoleDefaults) InvalidateOrg(ctx context.Context, orgID int64) error {
	prefix := fmt.Sprintf("%s:%d:", c.config.KeyPrefix, orgID)
	for _, key := range c.l1.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.l1.Remove(key)
		}
	}

	if c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for organization %d: %w", orgID, err)
	}
	return nil
}

// Purge empties the in-process tier. Redis entries expire on their own.
func (c *RoleDefaults) Purge() {
	c.l1.Purge()
}
