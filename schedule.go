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
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduleRetries starts a cron schedule that runs a reconciliation pass on
// every tick, covering connectivity changes that were never observed. Ticks
// are skipped while the queue is empty or the backend is known to be
// unreachable. The schedule stops when ctx is done.
func (q *OfflineQueue) ScheduleRetries(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() { q.scheduledPass(ctx) })
	if err != nil {
		return nil, fmt.Errorf("parse retry schedule %q: %w", spec, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	logrus.WithField("schedule", spec).Info("scheduled offline queue retries")
	return c, nil
}

func (q *OfflineQueue) scheduledPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if q.reachability.Load() == reachabilityOffline || q.Len() == 0 {
		return
	}
	result, err := q.Reconcile(ctx)
	if err != nil {
		logrus.WithError(err).Warn("scheduled reconciliation pass interrupted")
		return
	}
	if !result.Coalesced {
		logrus.WithField("synced", result.Synced).Debug("scheduled reconciliation pass finished")
	}
}
