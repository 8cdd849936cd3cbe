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

package redlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Lock when another holder owns the key.
var ErrLockHeld = errors.New("lock is already held")

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Locker is a single-key Redis lock. It keeps reconciliation passes from
// overlapping, and writes from interleaving, when several processes share one
// queue store.
type Locker struct {
	client redis.UniversalClient
	key    string
	token  string // only the holder of this token may release the key
}

// NewLocker returns a locker for key. An empty token is replaced with a random one.
func NewLocker(client redis.UniversalClient, key, token string) *Locker {
	if token == "" {
		token = uuid.NewString()
	}
	return &Locker{client: client, key: key, token: token}
}

// Lock takes the key for ttl, failing with ErrLockHeld if it is taken.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

// Unlock releases the key if this locker still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	released, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if released == 0 {
		return fmt.Errorf("release %s: lock expired or held by another process", l.key)
	}
	return nil
}

// WaitLock retries Lock with jittered backoff until it succeeds, wait elapses
// or ctx is done. Errors other than ErrLockHeld end the wait at once.
func (l *Locker) WaitLock(ctx context.Context, ttl, wait time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = wait

	err := backoff.Retry(func() error {
		err := l.Lock(ctx, ttl)
		if err != nil && !errors.Is(err, ErrLockHeld) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("wait for %s: %w", l.key, err)
	}
	return nil
}
