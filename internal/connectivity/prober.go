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

package connectivity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultMaxBackoff    = 5 * time.Minute
	DefaultProbeTimeout  = 5 * time.Second
)

type ProberConfig struct {
	URL        string
	Headers    map[string]string
	Interval   time.Duration
	MaxBackoff time.Duration
	Timeout    time.Duration
}

// Prober polls an HTTP endpoint. While the endpoint is reachable it probes at
// Interval; while it is down the delay grows exponentially up to MaxBackoff.
type Prober struct {
	broadcaster
	cfg    ProberConfig
	client *http.Client
}

func NewProber(cfg ProberConfig) (*Prober, error) {
	if cfg.URL == "" {
		return nil, errors.New("probe url is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	return &Prober{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Probe performs one check. Any answer below 500 means the backend is up,
// including auth failures.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return false
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.Interval / 4
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		up := p.Probe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.set(up) {
			logrus.WithFields(logrus.Fields{"reachable": up, "url": p.cfg.URL}).Info("connectivity changed")
		}

		wait := p.cfg.Interval
		if up {
			bo.Reset()
		} else {
			wait = bo.NextBackOff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
