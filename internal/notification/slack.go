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
	"fmt"
	"net/http"
	"time"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// SlackNotifier posts messages to a Slack incoming webhook.
type SlackNotifier struct {
	poster
}

func NewSlackNotifier(webhookURL string, client *http.Client) *SlackNotifier {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &SlackNotifier{poster{url: webhookURL, client: client}}
}

func (s *SlackNotifier) Notify(ctx context.Context, msg Message) {
	s.post(ctx, msg.Kind, slackMessage(msg))
}

func slackMessage(msg Message) slackPayload {
	fields := []slackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Event:*\n%s", msg.Kind)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", msg.Time.Format(time.RFC822))},
	}
	if msg.SubmissionID != "" {
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Submission:*\n%s", msg.SubmissionID)})
	}
	return slackPayload{
		Text: msg.Text,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: msg.Title, Emoji: true}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: msg.Text}},
			{Type: "section", Fields: fields},
		},
	}
}
