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

package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civicdocs/docsync/internal/kvstore"
	"github.com/civicdocs/docsync/internal/notification"
	"github.com/civicdocs/docsync/model"
	"github.com/sirupsen/logrus"
)

const (
	reachabilityUnknown int32 = iota
	reachabilityOffline
	reachabilityOnline
)

// QueueStats are cumulative counters since the queue was created.
type QueueStats struct {
	PassesStarted   int64
	PassesCoalesced int64
	Synced          int64
	Failed          int64
	Rejected        int64
}

// OfflineQueue is the durable list of submissions waiting for delivery.
//
// Enqueue, Discard and removal after delivery are serialized by one mutex, and
// every write to the store happens under it, so an older snapshot never
// overwrites a newer one.
type OfflineQueue struct {
	store       kvstore.Store
	submissions SubmissionService
	assets      AssetUploader
	notifier    notification.Notifier
	opts        options

	mu       sync.Mutex
	items    []model.QueuedSubmission
	rejected []model.RejectedSubmission

	// with a shared store, changes made here and not yet written
	added   map[string]struct{}
	removed map[string]struct{}

	reachability atomic.Int32
	reconciling  atomic.Bool
	wg           sync.WaitGroup

	passesStarted   atomic.Int64
	passesCoalesced atomic.Int64
	synced          atomic.Int64
	failed          atomic.Int64
	rejectedCount   atomic.Int64
}

// NewOfflineQueue returns an empty queue. Call Initialize to load persisted items.
// A nil notifier discards messages.
func NewOfflineQueue(store kvstore.Store, submissions SubmissionService, assets AssetUploader, notifier notification.Notifier, opts ...Option) *OfflineQueue {
	o := options{storeKey: DefaultStoreKey, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if notifier == nil {
		notifier = notification.Nop()
	}
	return &OfflineQueue{
		store:       store,
		submissions: submissions,
		assets:      assets,
		notifier:    notifier,
		opts:        o,
		added:       make(map[string]struct{}),
		removed:     make(map[string]struct{}),
	}
}

func (q *OfflineQueue) shared() bool {
	return q.opts.storeLocker != nil
}

func (q *OfflineQueue) rejectedKey() string {
	return q.opts.storeKey + rejectedKeySuffix
}

// Initialize replaces the in-memory queue with the persisted one. A missing
// key yields an empty queue, and so does a read failure. Stored records that
// cannot be decoded are copied aside under "<key>:corrupt" and the readable
// rest is kept. Initialize never starts a reconciliation pass.
func (q *OfflineQueue) Initialize(ctx context.Context) {
	items, ok := q.readPending(ctx)
	if !ok {
		items = []model.QueuedSubmission{}
	}
	rejected := q.loadRejected(ctx)

	// an item present in both lists was rejected but the pending write was lost
	if len(rejected) > 0 {
		dead := make(map[string]struct{}, len(rejected))
		for _, r := range rejected {
			dead[r.Submission.ID] = struct{}{}
		}
		kept := items[:0]
		for _, item := range items {
			if _, ok := dead[item.ID]; !ok {
				kept = append(kept, item)
			}
		}
		items = kept
	}

	q.mu.Lock()
	q.items = items
	q.rejected = rejected
	clear(q.added)
	clear(q.removed)
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"store_key": q.opts.storeKey,
		"pending":   len(items),
		"rejected":  len(rejected),
	}).Info("offline queue loaded")
}

// readPending loads the stored queue. It reports false only when the store
// could not be read; undecodable content is kept aside and skipped.
func (q *OfflineQueue) readPending(ctx context.Context) ([]model.QueuedSubmission, bool) {
	data, err := q.store.Load(ctx, q.opts.storeKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []model.QueuedSubmission{}, true
	}
	if err != nil {
		logrus.WithError(err).WithField("store_key", q.opts.storeKey).Error("failed to read offline queue")
		return nil, false
	}

	items, malformed, err := model.DecodeQueue(data)
	if err != nil {
		logrus.WithError(err).WithField("store_key", q.opts.storeKey).Warn("offline queue is malformed, starting empty")
		q.keepCorrupt(ctx, data)
		return []model.QueuedSubmission{}, true
	}
	if len(malformed) > 0 {
		logrus.WithFields(logrus.Fields{
			"store_key": q.opts.storeKey,
			"malformed": len(malformed),
			"pending":   len(items),
		}).Warn("offline queue has unreadable records, keeping them aside")
		q.keepCorruptRecords(ctx, malformed)
	}
	return items, true
}

func (q *OfflineQueue) corruptKey() string {
	return q.opts.storeKey + ":corrupt"
}

func (q *OfflineQueue) keepCorrupt(ctx context.Context, data []byte) {
	key := q.corruptKey()
	if err := q.store.Save(context.WithoutCancel(ctx), key, data); err != nil {
		logrus.WithError(err).WithField("store_key", key).Error("failed to keep malformed offline queue")
	}
}

// keepCorruptRecords appends records to the JSON array under "<key>:corrupt".
// If that key holds something else, the records go to a timestamped key instead.
func (q *OfflineQueue) keepCorruptRecords(ctx context.Context, records []json.RawMessage) {
	key := q.corruptKey()
	var kept []json.RawMessage
	existing, err := q.store.Load(ctx, key)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err == nil && json.Unmarshal(existing, &kept) == nil:
	default:
		kept = nil
		key = fmt.Sprintf("%s:%d", key, q.opts.now().UnixMilli())
	}

	data, err := json.Marshal(append(kept, records...))
	if err == nil {
		err = q.store.Save(context.WithoutCancel(ctx), key, data)
	}
	if err != nil {
		logrus.WithError(err).WithField("store_key", key).Error("failed to keep unreadable offline queue records")
	}
}

func (q *OfflineQueue) loadRejected(ctx context.Context) []model.RejectedSubmission {
	rejected, ok := q.readRejected(ctx)
	if !ok {
		return []model.RejectedSubmission{}
	}
	return rejected
}

func (q *OfflineQueue) readRejected(ctx context.Context) ([]model.RejectedSubmission, bool) {
	data, err := q.store.Load(ctx, q.rejectedKey())
	if errors.Is(err, kvstore.ErrNotFound) {
		return []model.RejectedSubmission{}, true
	}
	if err == nil {
		var rejected []model.RejectedSubmission
		if rejected, err = model.DecodeRejected(data); err == nil {
			return rejected, true
		}
	}
	logrus.WithError(err).WithField("store_key", q.rejectedKey()).Warn("failed to load rejected submissions")
	return nil, false
}

// Enqueue appends s and persists the whole queue before returning. An empty ID
// or CreatedAt is filled in. Enqueueing an ID that is already pending returns
// the pending item unchanged. Persistence failures are logged; the in-memory
// queue stays authoritative.
func (q *OfflineQueue) Enqueue(ctx context.Context, s model.QueuedSubmission) model.QueuedSubmission {
	s = s.Clone()
	if s.ID == "" {
		s.ID = model.NewSubmissionID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = q.opts.now().UnixMilli()
	}

	q.mu.Lock()
	for _, item := range q.items {
		if item.ID == s.ID {
			q.mu.Unlock()
			return item.Clone()
		}
	}
	q.items = append(q.items, s)
	if q.shared() {
		q.added[s.ID] = struct{}{}
	}
	q.persistLocked(ctx)
	pending := len(q.items)
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"submission_id": s.ID,
		"doc_type":      s.DocumentType,
		"pending":       pending,
	}).Info("submission queued for later sync")
	q.notifier.Notify(ctx, notification.Queued(s.ID))
	return s.Clone()
}

// CurrentQueue returns a copy of the pending submissions in insertion order.
func (q *OfflineQueue) CurrentQueue() []model.QueuedSubmission {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.QueuedSubmission, len(q.items))
	for i, item := range q.items {
		out[i] = item.Clone()
	}
	return out
}

// Len returns the number of pending submissions.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Discard abandons a pending submission and reports whether it was pending.
func (q *OfflineQueue) Discard(ctx context.Context, id string) bool {
	q.mu.Lock()
	removed := q.removeLocked(id)
	if removed {
		q.persistLocked(ctx)
	}
	q.mu.Unlock()

	if removed {
		logrus.WithField("submission_id", id).Info("submission discarded")
	}
	return removed
}

// Rejected returns the submissions the backend refused permanently.
func (q *OfflineQueue) Rejected() []model.RejectedSubmission {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.RejectedSubmission, len(q.rejected))
	for i, r := range q.rejected {
		r.Submission = r.Submission.Clone()
		out[i] = r
	}
	return out
}

func (q *OfflineQueue) Stats() QueueStats {
	return QueueStats{
		PassesStarted:   q.passesStarted.Load(),
		PassesCoalesced: q.passesCoalesced.Load(),
		Synced:          q.synced.Load(),
		Failed:          q.failed.Load(),
		Rejected:        q.rejectedCount.Load(),
	}
}

func (q *OfflineQueue) isPending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (q *OfflineQueue) removeLocked(id string) bool {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			if q.shared() {
				delete(q.added, id)
				q.removed[id] = struct{}{}
			}
			return true
		}
	}
	return false
}

// underStoreLock runs fn holding the shared store lock, or directly when the
// store is not shared. It reports whether fn ran.
func (q *OfflineQueue) underStoreLock(ctx context.Context, fn func(ctx context.Context)) bool {
	ctx = context.WithoutCancel(ctx)
	if !q.shared() {
		fn(ctx)
		return true
	}
	if err := q.opts.storeLocker.WaitLock(ctx, q.opts.storeLockTTL, q.opts.storeLockTTL); err != nil {
		logrus.WithError(err).WithField("store_key", q.opts.storeKey).Error("failed to lock shared offline queue, keeping changes in memory")
		return false
	}
	defer func() {
		if err := q.opts.storeLocker.Unlock(ctx); err != nil {
			logrus.WithError(err).WithField("store_key", q.opts.storeKey).Warn("failed to release shared offline queue lock")
		}
	}()
	fn(ctx)
	return true
}

// persistLocked writes the pending queue. With a shared store the stored queue
// is reloaded first and this process's unsaved changes are applied to it.
// q.mu must be held. The write is not skipped when ctx is already cancelled.
func (q *OfflineQueue) persistLocked(ctx context.Context) {
	q.underStoreLock(ctx, func(ctx context.Context) {
		if q.shared() {
			stored, ok := q.readPending(ctx)
			if !ok {
				return
			}
			q.items = mergePending(stored, q.items, q.added, q.removed)
		}
		if q.savePendingLocked(ctx) == nil {
			clear(q.added)
			clear(q.removed)
		}
	})
}

// refreshLocked picks up what other processes wrote to a shared store. q.mu
// must be held.
func (q *OfflineQueue) refreshLocked(ctx context.Context) {
	if !q.shared() {
		return
	}
	if len(q.added) > 0 || len(q.removed) > 0 {
		q.persistLocked(ctx)
		return
	}
	if stored, ok := q.readPending(ctx); ok {
		q.items = stored
	}
}

func (q *OfflineQueue) savePendingLocked(ctx context.Context) error {
	data, err := model.EncodeQueue(q.items)
	if err != nil {
		logrus.WithError(err).Error("failed to encode offline queue")
		return err
	}
	if err := q.store.Save(ctx, q.opts.storeKey, data); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"store_key": q.opts.storeKey,
			"pending":   len(q.items),
		}).Error("failed to persist offline queue")
		return err
	}
	return nil
}

// persistRejectedLocked writes the rejected list and reports whether it is
// durable. With a shared store the entries other processes wrote are kept.
func (q *OfflineQueue) persistRejectedLocked(ctx context.Context) bool {
	saved := false
	q.underStoreLock(ctx, func(ctx context.Context) {
		if q.shared() {
			stored, ok := q.readRejected(ctx)
			if !ok {
				return
			}
			q.rejected = mergeRejected(stored, q.rejected)
		}
		data, err := model.EncodeRejected(q.rejected)
		if err != nil {
			logrus.WithError(err).Error("failed to encode rejected submissions")
			return
		}
		if err := q.store.Save(ctx, q.rejectedKey(), data); err != nil {
			logrus.WithError(err).WithField("store_key", q.rejectedKey()).Error("failed to persist rejected submissions")
			return
		}
		saved = true
	})
	return saved
}

// mergePending applies unsaved local additions and removals to the stored queue.
func mergePending(stored, local []model.QueuedSubmission, added, removed map[string]struct{}) []model.QueuedSubmission {
	merged := make([]model.QueuedSubmission, 0, len(stored)+len(added))
	seen := make(map[string]struct{}, len(stored)+len(added))
	for _, item := range stored {
		if _, gone := removed[item.ID]; gone {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	for _, item := range local {
		if _, ok := added[item.ID]; !ok {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	return merged
}

func mergeRejected(stored, local []model.RejectedSubmission) []model.RejectedSubmission {
	merged := append([]model.RejectedSubmission(nil), stored...)
	seen := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		seen[r.Submission.ID] = struct{}{}
	}
	for _, r := range local {
		if _, dup := seen[r.Submission.ID]; !dup {
			merged = append(merged, r)
		}
	}
	return merged
}
