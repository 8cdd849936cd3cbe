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
	"fmt"
	"strings"

	"github.com/civicdocs/docsync"
	"github.com/civicdocs/docsync/model"
	"github.com/spf13/cobra"
)

// parseFields turns repeated key=value flags into ordered form fields.
func parseFields(pairs []string) (model.FormFields, error) {
	fields := model.NewFormFields()
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", pair)
		}
		fields.Set(name, value)
	}
	return fields, nil
}

func buildSubmission(docType, image string, pairs []string) (model.QueuedSubmission, error) {
	parsedType, err := model.ParseDocumentType(docType)
	if err != nil {
		return model.QueuedSubmission{}, err
	}
	fields, err := parseFields(pairs)
	if err != nil {
		return model.QueuedSubmission{}, err
	}
	s := model.QueuedSubmission{
		DocumentType:        parsedType,
		FormFields:          fields,
		LocalAssetReference: image,
	}
	if err := s.Validate(); err != nil {
		return model.QueuedSubmission{}, fmt.Errorf("invalid submission: %w", err)
	}
	return s, nil
}

func enqueueCommands(app *docsyncInstance) *cobra.Command {
	var (
		docType string
		image   string
		fields  []string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "submit a registration, saving it offline when the backend is unreachable",
		Example: `  docsync enqueue --type birth --field fullName="Jane Doe" --field dateOfBirth=1990-01-01 \
    --field placeOfBirth=Lagos --image file:///sdcard/DCIM/capture.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildSubmission(docType, image, fields)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if offline {
				item := app.queue.Enqueue(ctx, s)
				fmt.Printf("Saved %s offline (%d pending)\n", item.ID, app.queue.Len())
				return nil
			}

			prober, err := app.newProber()
			if err != nil {
				return err
			}
			app.queue.OnConnectivityChange(ctx, prober.Probe(ctx))

			outcome, err := app.queue.Submit(ctx, s)
			if err != nil {
				return err
			}
			switch outcome.Status {
			case docsync.Delivered:
				fmt.Printf("Submitted %s\n", outcome.Submission.ID)
			default:
				fmt.Printf("Saved %s offline (%d pending)\n", outcome.Submission.ID, app.queue.Len())
				if outcome.Err != nil {
					fmt.Printf("Delivery failed: %v\n", outcome.Err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docType, "type", "birth", "document type: birth or id")
	cmd.Flags().StringVar(&image, "image", "", "local path or file:// URI of the captured document")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "form field as name=value, repeatable")
	cmd.Flags().BoolVar(&offline, "offline", false, "queue without trying the backend")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
