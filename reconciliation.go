package docsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicdocs/docsync/internal/connectivity"
	"github.com/civicdocs/docsync/internal/notification"
	"github.com/civicdocs/docsync/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docsync offline queue")

// ReconcileResult summarizes one pass.
type ReconcileResult struct {
	Attempted int
	Synced    int
	Failed    int
	Rejected  int
	// Coalesced is set when another pass was already running and this call did nothing.
	Coalesced bool
}

// permanent is implemented by delivery errors that will repeat on retry.
type permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

func recordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// Reconcile tries every pending submission once, oldest first. Delivered items
// are removed as soon as they are confirmed; failed items stay queued in their
// position until the next pass. The queue is written once at the end of the
// pass unless WithPersistEachRemoval is set. If a pass is already running the
// call returns immediately with Coalesced set.
//
// The returned error is only ever the context's error.
func (q *OfflineQueue) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if !q.reconciling.CompareAndSwap(false, true) {
		q.passesCoalesced.Add(1)
		return ReconcileResult{Coalesced: true}, nil
	}
	defer q.reconciling.Store(false)

	if q.opts.locker != nil {
		if err := q.opts.locker.Lock(ctx, q.opts.lockTTL); err != nil {
			q.passesCoalesced.Add(1)
			logrus.WithError(err).Debug("reconciliation pass skipped, lock not acquired")
			return ReconcileResult{Coalesced: true}, nil
		}
		defer func() {
			if err := q.opts.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logrus.WithError(err).Warn("failed to release reconciliation lock")
			}
		}()
	}

	q.passesStarted.Add(1)
	ctx, span := tracer.Start(ctx, "Reconciling offline queue")
	defer span.End()

	q.mu.Lock()
	q.refreshLocked(ctx)
	q.mu.Unlock()

	snapshot := q.CurrentQueue()
	span.SetAttributes(attribute.Int("queue.pending", len(snapshot)))

	var result ReconcileResult
	for _, item := range snapshot {
		if ctx.Err() != nil {
			break
		}
		// discarded since the snapshot was taken
		if !q.isPending(item.ID) {
			continue
		}
		result.Attempted++

		err := q.deliver(ctx, item)
		switch {
		case err == nil:
			result.Synced++
			q.mu.Lock()
			if q.removeLocked(item.ID) && q.opts.persistEachRemoval {
				q.persistLocked(ctx)
			}
			q.mu.Unlock()
			logrus.WithField("submission_id", item.ID).Info("submission synced")

		case q.opts.rejectPermanent && isPermanent(err) && q.reject(ctx, item, err):
			result.Rejected++

		default:
			result.Failed++
			logrus.WithError(err).WithFields(logrus.Fields{
				"submission_id": item.ID,
				"doc_type":      item.DocumentType,
			}).Warn("submission delivery failed, keeping it queued")
		}
	}

	q.mu.Lock()
	q.persistLocked(ctx)
	remaining := len(q.items)
	q.mu.Unlock()

	q.synced.Add(int64(result.Synced))
	q.failed.Add(int64(result.Failed))
	q.rejectedCount.Add(int64(result.Rejected))

	span.SetAttributes(
		attribute.Int("queue.synced", result.Synced),
		attribute.Int("queue.failed", result.Failed),
		attribute.Int("queue.rejected", result.Rejected),
	)
	logrus.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"failed":    result.Failed,
		"rejected":  result.Rejected,
		"remaining": remaining,
	}).Info("reconciliation pass finished")

	if result.Synced > 0 {
		q.notifier.Notify(ctx, notification.Synced(result.Synced))
	}
	if result.Rejected > 0 {
		q.notifier.Notify(ctx, notification.Rejected(result.Rejected))
	}
	return result, ctx.Err()
}

// deliver uploads the asset, then creates the backend record with its reference.
func (q *OfflineQueue) deliver(ctx context.Context, item model.QueuedSubmission) error {
	ctx, span := tracer.Start(ctx, "Delivering submission", trace.WithAttributes(
		attribute.String("submission.id", item.ID),
		attribute.String("submission.doc_type", string(item.DocumentType)),
	))
	defer span.End()

	ref, err := q.assets.UploadAsset(ctx, item.ID, item.LocalAssetReference)
	if err != nil {
		return recordError(span, "upload asset", err)
	}
	span.AddEvent("asset uploaded")

	if err := q.submissions.CreateSubmission(ctx, model.NewRemoteSubmission(item, ref)); err != nil {
		return recordError(span, "create submission", err)
	}
	return nil
}

// reject moves item to the rejected list. The item leaves the pending queue
// only once the rejected list is durable; otherwise it stays queued and reject
// returns false.
func (q *OfflineQueue) reject(ctx context.Context, item model.QueuedSubmission, cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rejected = append(q.rejected, model.RejectedSubmission{
		Submission: item,
		Reason:     cause.Error(),
		RejectedAt: q.opts.now().UnixMilli(),
	})
	if !q.persistRejectedLocked(ctx) {
		kept := q.rejected[:0]
		for _, r := range q.rejected {
			if r.Submission.ID != item.ID {
				kept = append(kept, r)
			}
		}
		q.rejected = kept
		return false
	}
	q.removeLocked(item.ID)

	logrus.WithError(cause).WithField("submission_id", item.ID).Warn("submission rejected by backend")
	return true
}

// OnConnectivityChange records the latest reachability. A change from
// unreachable or unknown to reachable with a non-empty queue starts one pass in
// the background and returns true. Use Wait to block until it finishes.
func (q *OfflineQueue) OnConnectivityChange(ctx context.Context, reachable bool) bool {
	next := reachabilityOffline
	if reachable {
		next = reachabilityOnline
	}
	prev := q.reachability.Swap(next)
	if !reachable || prev == reachabilityOnline {
		return false
	}
	if q.Len() == 0 {
		return false
	}

	logrus.WithField("pending", q.Len()).Info("connectivity restored, syncing offline submissions")
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if _, err := q.Reconcile(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("reconciliation pass interrupted")
		}
	}()
	return true
}

// Watch feeds monitor changes into OnConnectivityChange and applies the
// monitor's current state once, so a queue that starts while already online is
// flushed. The returned function unsubscribes.
func (q *OfflineQueue) Watch(ctx context.Context, monitor connectivity.Monitor) func() {
	unsubscribe := monitor.Subscribe(func(reachable bool) {
		q.OnConnectivityChange(ctx, reachable)
	})
	q.OnConnectivityChange(ctx, monitor.Reachable())
	return unsubscribe
}

// Wait blocks until background passes started by OnConnectivityChange finish.
func (q *OfflineQueue) Wait() {
	q.wg.Wait()
}

// SubmitStatus tells how Submit handled a submission.
type SubmitStatus string

const (
	Delivered SubmitStatus = "delivered"
	Queued    SubmitStatus = "queued"
)

type SubmitOutcome struct {
	Status     SubmitStatus
	Submission model.QueuedSubmission
	// Err is the delivery error that caused a fallback to the queue, if any.
	Err error
}

// Submit validates s and, when the backend was last seen reachable, delivers it
// directly. When offline, when reachability is unknown, or when delivery fails,
// s is enqueued instead. Only a validation failure is returned as an error, and
// in that case nothing is queued.
func (q *OfflineQueue) Submit(ctx context.Context, s model.QueuedSubmission) (SubmitOutcome, error) {
	if err := s.Validate(); err != nil {
		return SubmitOutcome{}, err
	}
	s = s.Clone()
	if s.ID == "" {
		s.ID = model.NewSubmissionID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = q.opts.now().UnixMilli()
	}

	var deliveryErr error
	if q.reachability.Load() == reachabilityOnline {
		if deliveryErr = q.deliver(ctx, s); deliveryErr == nil {
			logrus.WithFields(logrus.Fields{
				"submission_id": s.ID,
				"doc_type":      s.DocumentType,
			}).Info("submission delivered")
			q.notifier.Notify(ctx, notification.Submitted(s.ID))
			return SubmitOutcome{Status: Delivered, Submission: s}, nil
		}
		logrus.WithError(deliveryErr).WithField("submission_id", s.ID).Warn("submission failed, saving offline")
	}

	queued := q.Enqueue(ctx, s)
	return SubmitOutcome{Status: Queued, Submission: queued, Err: deliveryErr}, nil
}
