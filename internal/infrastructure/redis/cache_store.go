package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// CacheStore implements ports.CacheStore on Redis. Each partition is a hash
// of JSON entries plus a sorted set recording first-insert order.
type CacheStore struct {
	r redis.Cmdable
	// optional key prefix to namespace entries
	prefix string
	logger *logrus.Logger
}

var _ ports.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a Redis-backed cache store.
func NewCacheStore(r redis.Cmdable, prefix string, logger *logrus.Logger) *CacheStore {
	return &CacheStore{r: r, prefix: prefix, logger: logger}
}

func (c *CacheStore) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *CacheStore) registryKey() string { return c.namespaced("partitions") }

func (c *CacheStore) entriesKey(name string) string {
	return c.namespaced("partition:" + name + ":entries")
}

func (c *CacheStore) orderKey(name string) string {
	return c.namespaced("partition:" + name + ":order")
}

func (c *CacheStore) seqKey(name string) string {
	return c.namespaced("partition:" + name + ":seq")
}

// Open registers the partition if it is new. Opening an existing partition
// only reads.
func (c *CacheStore) Open(ctx context.Context, name string) (ports.CachePartition, error) {
	err := c.r.ZScore(ctx, c.registryKey(), name).Err()
	if err == nil {
		return &partition{store: c, name: name}, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("look up partition %s: %w", name, err)
	}
	err = c.r.ZAddNX(ctx, c.registryKey(), &redis.Z{Score: float64(time.Now().UnixMilli()), Member: name}).Err()
	if err != nil {
		return nil, fmt.Errorf("register partition %s: %w", name, err)
	}
	return &partition{store: c, name: name}, nil
}

func (c *CacheStore) Partitions(ctx context.Context) ([]string, error) {
	return c.r.ZRange(ctx, c.registryKey(), 0, -1).Result()
}

func (c *CacheStore) Drop(ctx context.Context, name string) (bool, error) {
	pipe := c.r.TxPipeline()
	removed := pipe.ZRem(ctx, c.registryKey(), name)
	pipe.Del(ctx, c.entriesKey(name), c.orderKey(name), c.seqKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("drop partition %s: %w", name, err)
	}
	if c.logger != nil && removed.Val() > 0 {
		c.logger.WithField("partition", name).Info("redis: partition dropped")
	}
	return removed.Val() > 0, nil
}

type partition struct {
	store *CacheStore
	name  string
}

func (p *partition) Name() string { return p.name }

func (p *partition) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	b, err := p.store.r.HGet(ctx, p.store.entriesKey(p.name), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e cache.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &e, true, nil
}

// Put writes the entry and, for a new key only, appends it to the order set.
func (p *partition) Put(ctx context.Context, key string, entry *cache.Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	seq, err := p.store.r.Incr(ctx, p.store.seqKey(p.name)).Result()
	if err != nil {
		return err
	}
	pipe := p.store.r.TxPipeline()
	pipe.HSet(ctx, p.store.entriesKey(p.name), key, b)
	pipe.ZAddNX(ctx, p.store.orderKey(p.name), &redis.Z{Score: float64(seq), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		if p.store.logger != nil {
			p.store.logger.WithFields(logrus.Fields{"partition": p.name, "key": key}).WithError(err).Error("redis: failed to store cache entry")
		}
		return err
	}
	return nil
}

func (p *partition) Delete(ctx context.Context, key string) (bool, error) {
	pipe := p.store.r.TxPipeline()
	deleted := pipe.HDel(ctx, p.store.entriesKey(p.name), key)
	pipe.ZRem(ctx, p.store.orderKey(p.name), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return deleted.Val() > 0, nil
}

func (p *partition) Keys(ctx context.Context) ([]string, error) {
	return p.store.r.ZRange(ctx, p.store.orderKey(p.name), 0, -1).Result()
}
