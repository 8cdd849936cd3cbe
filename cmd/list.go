package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicdocs/docsync/model"
	"github.com/spf13/cobra"
)

type pendingView struct {
	ID           string            `json:"id"`
	DocumentType string            `json:"doc_type"`
	SavedAt      time.Time         `json:"saved_at"`
	Image        string            `json:"image"`
	Fields       map[string]string `json:"fields"`
}

func toPendingView(s model.QueuedSubmission) pendingView {
	return pendingView{
		ID:           s.ID,
		DocumentType: s.DocumentType.Label(),
		SavedAt:      time.UnixMilli(s.CreatedAt).UTC(),
		Image:        s.LocalAssetReference,
		Fields:       s.FormFields.Flatten(),
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("error printing output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func listCommands(app *docsyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "show submissions waiting to sync, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := app.queue.CurrentQueue()
			views := make([]pendingView, len(items))
			for i, item := range items {
				views[i] = toPendingView(item)
			}
			return printJSON(views)
		},
	}
}

func rejectedCommands(app *docsyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "rejected",
		Short: "show submissions the backend refused permanently",
		RunE: func(cmd *cobra.Command, args []string) error {
			type rejectedView struct {
				pendingView
				Reason     string    `json:"reason"`
				RejectedAt time.Time `json:"rejected_at"`
			}
			rejected := app.queue.Rejected()
			views := make([]rejectedView, len(rejected))
			for i, r := range rejected {
				views[i] = rejectedView{
					pendingView: toPendingView(r.Submission),
					Reason:      r.Reason,
					RejectedAt:  time.UnixMilli(r.RejectedAt).UTC(),
				}
			}
			return printJSON(views)
		},
	}
}
