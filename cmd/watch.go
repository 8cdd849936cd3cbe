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

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicdocs/docsync/internal/connectivity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (app *docsyncInstance) newProber() (*connectivity.Prober, error) {
	cfg := app.cnf.Connectivity
	return connectivity.NewProber(connectivity.ProberConfig{
		URL:        cfg.ProbeUrl,
		Headers:    map[string]string{"apikey": app.cnf.Remote.ApiKey},
		Interval:   time.Duration(cfg.Interval) * time.Second,
		MaxBackoff: time.Duration(cfg.MaxBackoff) * time.Second,
		Timeout:    time.Duration(cfg.Timeout) * time.Second,
	})
}

func watchCommands(app *docsyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "sync pending submissions whenever the backend becomes reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prober, err := app.newProber()
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			unsubscribe := app.queue.Watch(gctx, prober)
			defer unsubscribe()

			if spec := app.cnf.Queue.RetrySchedule; spec != "" {
				if _, err := app.queue.ScheduleRetries(gctx, spec); err != nil {
					return err
				}
			}

			g.Go(func() error {
				return prober.Run(gctx)
			})

			logrus.WithFields(logrus.Fields{
				"pending":   app.queue.Len(),
				"probe_url": app.cnf.Connectivity.ProbeUrl,
			}).Info("watching connectivity")

			err = g.Wait()
			stats := app.queue.Stats()
			logrus.WithFields(logrus.Fields{
				"passes":    stats.PassesStarted,
				"coalesced": stats.PassesCoalesced,
				"synced":    stats.Synced,
				"failed":    stats.Failed,
				"rejected":  stats.Rejected,
				"pending":   app.queue.Len(),
			}).Info("stopped watching")

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
