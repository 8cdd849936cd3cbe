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

	otellog "go.opentelemetry.io/otel/log"
)

// OTelNotifier emits messages as OpenTelemetry log records so collectors
// downstream of the app see the same notices the user does.
type OTelNotifier struct {
	logger otellog.Logger
}

func NewOTelNotifier(provider otellog.LoggerProvider) *OTelNotifier {
	return &OTelNotifier{logger: provider.Logger("docsync/notification")}
}

func (o *OTelNotifier) Notify(ctx context.Context, msg Message) {
	var record otellog.Record
	record.SetTimestamp(msg.Time)
	record.SetObservedTimestamp(msg.Time)
	record.SetSeverity(severity(msg.Kind))
	record.SetSeverityText(severity(msg.Kind).String())
	record.SetBody(otellog.StringValue(msg.Text))
	record.AddAttributes(
		otellog.String("notification.kind", string(msg.Kind)),
		otellog.String("notification.title", msg.Title),
		otellog.Int("notification.count", msg.Count),
	)
	if msg.SubmissionID != "" {
		record.AddAttributes(otellog.String("submission.id", msg.SubmissionID))
	}
	o.logger.Emit(ctx, record)
}

func severity(kind Kind) otellog.Severity {
	if kind == KindRejected {
		return otellog.SeverityWarn
	}
	return otellog.SeverityInfo
}
