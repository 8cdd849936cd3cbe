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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestOTelNotifier(t *testing.T) {
	var buf bytes.Buffer
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(&buf))
	require.NoError(t, err)
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))

	n := NewOTelNotifier(provider)
	n.Notify(context.Background(), Synced(1))
	n.Notify(context.Background(), Rejected(2))
	require.NoError(t, provider.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "1 offline submission has been synced successfully.")
	assert.Contains(t, out, string(KindSynced))
	assert.Contains(t, out, "2 submissions were rejected and removed from the queue.")
}
