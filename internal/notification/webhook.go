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

package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/civicdocs/docsync/internal/request"
	"github.com/sirupsen/logrus"
)

const deliveryTimeout = 10 * time.Second

// poster sends JSON payloads in the background.
type poster struct {
	url     string
	headers map[string]string
	client  *http.Client
	wg      sync.WaitGroup
}

func (p *poster) post(ctx context.Context, kind Kind, payload interface{}) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		body, err := request.ToJsonReq(payload)
		if err != nil {
			logrus.WithError(err).WithField("kind", kind).Error("encode notification")
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
		if err != nil {
			logrus.WithError(err).WithField("kind", kind).Error("build notification request")
			return
		}
		for k, v := range p.headers {
			req.Header.Set(k, v)
		}
		if _, err := request.Call(p.client, req, nil); err != nil {
			logrus.WithError(err).WithField("kind", kind).Warn("notification delivery failed")
		}
	}()
}

// Flush waits for in-flight deliveries.
func (p *poster) Flush() {
	p.wg.Wait()
}

// WebhookNotifier posts each message as JSON to a URL.
type WebhookNotifier struct {
	poster
}

func NewWebhookNotifier(url string, headers map[string]string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &WebhookNotifier{poster{url: url, headers: headers, client: client}}
}

func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) {
	w.post(ctx, msg.Kind, msg)
}
