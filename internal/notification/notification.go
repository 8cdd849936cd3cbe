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
Package notification delivers user-visible messages about queued and synced
submissions. Delivery is fire-and-forget: a notifier never reports failure to
the caller.
*/
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindQueued    Kind = "submission.queued"
	KindSynced    Kind = "submissions.synced"
	KindRejected  Kind = "submission.rejected"
	KindSubmitted Kind = "submission.submitted"
)

type Message struct {
	Kind         Kind      `json:"kind"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	Count        int       `json:"count,omitempty"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Time         time.Time `json:"time"`
}

// Queued tells the user a submission was saved for later delivery.
func Queued(submissionID string) Message {
	return Message{
		Kind:         KindQueued,
		Title:        "Saved Offline",
		Text:         "Document saved and will sync when you are back online.",
		Count:        1,
		SubmissionID: submissionID,
		Time:         time.Now(),
	}
}

// Synced summarizes a reconciliation pass that delivered n submissions.
func Synced(n int) Message {
	text := fmt.Sprintf("%d offline submissions have been synced successfully.", n)
	if n == 1 {
		text = "1 offline submission has been synced successfully."
	}
	return Message{Kind: KindSynced, Title: "Sync Complete", Text: text, Count: n, Time: time.Now()}
}

// Rejected reports n submissions the backend refused permanently.
func Rejected(n int) Message {
	text := fmt.Sprintf("%d submissions were rejected and removed from the queue.", n)
	if n == 1 {
		text = "1 submission was rejected and removed from the queue."
	}
	return Message{Kind: KindRejected, Title: "Submission Rejected", Text: text, Count: n, Time: time.Now()}
}

// Submitted confirms a submission delivered without queueing.
func Submitted(submissionID string) Message {
	return Message{
		Kind:         KindSubmitted,
		Title:        "Submission Successful",
		Text:         "Your application has been received and is now pending review.",
		Count:        1,
		SubmissionID: submissionID,
		Time:         time.Now(),
	}
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

type nop struct{}

func (nop) Notify(context.Context, Message) {}

// Nop discards every message.
func Nop() Notifier {
	return nop{}
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		n.Notify(ctx, msg)
	}
}

// Multi fans a message out to every non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	var out multi
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return Nop()
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// LogNotifier writes messages to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, msg Message) {
	logrus.WithFields(logrus.Fields{
		"kind":          msg.Kind,
		"count":         msg.Count,
		"submission_id": msg.SubmissionID,
	}).Info(msg.Text)
}
