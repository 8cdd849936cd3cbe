/*
Copyright 2024 Docsync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache stores small msgpack-encoded values with a TTL.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get fills dst and reports whether the key was present.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Delete(ctx context.Context, key string) error
}

const (
	localSize = 1024
	localTTL  = time.Minute
)

// TieredCache keeps a TinyLFU in-process layer in front of an optional Redis layer.
type TieredCache struct {
	cache *cache.Cache
}

// NewRedisCache caches in process and in Redis, so resolved values survive restarts
// and are shared by processes using the same Redis.
func NewRedisCache(client redis.UniversalClient) *TieredCache {
	return &TieredCache{cache: cache.New(&cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(localSize, localTTL),
	})}
}

// NewLocalCache caches in process only.
func NewLocalCache() *TieredCache {
	return &TieredCache{cache: cache.New(&cache.Options{
		LocalCache: cache.NewTinyLFU(localSize, localTTL),
	})}
}

func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
}

func (c *TieredCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	err := c.cache.Get(ctx, key, dst)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	err := c.cache.Delete(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
