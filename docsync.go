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

/*
Package docsync keeps civic-document registrations that could not be delivered
in a durable, ordered queue and replays them against the backend once it is
reachable again.

Collaborators are injected: a kvstore.Store for durability, a SubmissionService
and an AssetUploader for delivery, and a notification.Notifier for the
messages shown to the user.
*/
package docsync

import (
	"context"
	"time"

	"github.com/civicdocs/docsync/model"
)

// DefaultStoreKey is the key the pending queue is persisted under.
const DefaultStoreKey = "@offline_queue"

const rejectedKeySuffix = ":rejected"

// SubmissionService creates the backend record for a delivered submission.
type SubmissionService interface {
	CreateSubmission(ctx context.Context, submission model.RemoteSubmission) error
}

// AssetUploader turns a local asset into a durable reference. Uploading the
// same submission twice must yield the same reference.
type AssetUploader interface {
	UploadAsset(ctx context.Context, submissionID, localRef string) (string, error)
}

// PassLocker serializes reconciliation passes across processes sharing a store.
type PassLocker interface {
	Lock(ctx context.Context, ttl time.Duration) error
	Unlock(ctx context.Context) error
}

// StoreLocker guards one read-modify-write of a store that several processes
// write under the same key.
type StoreLocker interface {
	WaitLock(ctx context.Context, ttl, wait time.Duration) error
	Unlock(ctx context.Context) error
}

type options struct {
	storeKey           string
	rejectPermanent    bool
	persistEachRemoval bool
	locker             PassLocker
	lockTTL            time.Duration
	storeLocker        StoreLocker
	storeLockTTL       time.Duration
	now                func() time.Time
}

type Option func(*options)

// WithStoreKey overrides DefaultStoreKey.
func WithStoreKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.storeKey = key
		}
	}
}

// WithRejectPermanentFailures moves submissions the backend refuses as invalid
// out of the pending queue into the rejected list instead of retrying them forever.
func WithRejectPermanentFailures() Option {
	return func(o *options) { o.rejectPermanent = true }
}

// WithPersistEachRemoval writes the queue after every delivered submission
// rather than once at the end of a pass.
func WithPersistEachRemoval() Option {
	return func(o *options) { o.persistEachRemoval = true }
}

// WithPassLocker guards each pass with locker, held for at most ttl. A pass
// that cannot take the lock is coalesced.
func WithPassLocker(locker PassLocker, ttl time.Duration) Option {
	return func(o *options) {
		o.locker = locker
		o.lockTTL = ttl
	}
}

// WithSharedStore is for a store that several processes write under the same
// key. Every write takes locker, reloads what is stored and applies only this
// process's own additions and removals to it, so one process never overwrites
// items another one queued. Items queued here are appended after the stored
// ones. Pair it with WithPassLocker so only one process delivers at a time.
func WithSharedStore(locker StoreLocker, ttl time.Duration) Option {
	return func(o *options) {
		o.storeLocker = locker
		o.storeLockTTL = ttl
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
