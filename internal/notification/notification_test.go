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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Notify(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "1 offline submission has been synced successfully.", Synced(1).Text)
	assert.Equal(t, "3 offline submissions have been synced successfully.", Synced(3).Text)
	assert.Equal(t, 3, Synced(3).Count)
	assert.Equal(t, KindSynced, Synced(3).Kind)

	q := Queued("sub_a")
	assert.Equal(t, KindQueued, q.Kind)
	assert.Equal(t, "sub_a", q.SubmissionID)

	assert.Equal(t, "1 submission was rejected and removed from the queue.", Rejected(1).Text)
	assert.Equal(t, KindSubmitted, Submitted("sub_b").Kind)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	n := Multi(a, nil, b)
	n.Notify(context.Background(), Synced(2))
	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 1)

	assert.Equal(t, Nop(), Multi())
	assert.Same(t, a, Multi(nil, a))
}

func TestWebhookNotifier(t *testing.T) {
	received := make(chan Message, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Docsync-Token"))
		var msg Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received <- msg
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, map[string]string{"X-Docsync-Token": "secret"}, server.Client())
	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, Queued("sub_a"))
	cancel()
	n.Flush()

	require.Len(t, received, 1)
	msg := <-received
	assert.Equal(t, KindQueued, msg.Kind)
	assert.Equal(t, "sub_a", msg.SubmissionID)
}

func TestWebhookNotifier_FailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, nil, nil)
	n.Notify(context.Background(), Synced(1))
	n.Flush()
}

func TestSlackNotifier(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, nil)
	n.Notify(context.Background(), Synced(2))
	n.Flush()

	require.Len(t, bodies, 1)
	var payload slackPayload
	require.NoError(t, json.Unmarshal(<-bodies, &payload))
	assert.Equal(t, "2 offline submissions have been synced successfully.", payload.Text)
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "header", payload.Blocks[0].Type)
	assert.Equal(t, "Sync Complete", payload.Blocks[0].Text.Text)
}
