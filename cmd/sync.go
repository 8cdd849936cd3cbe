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

	"github.com/spf13/cobra"
)

func syncCommands(app *docsyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "try every pending submission once",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.queue.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if result.Coalesced {
				fmt.Println("Another sync is already running")
				return nil
			}
			fmt.Printf("Attempted %d, synced %d, failed %d, rejected %d, %d still pending\n",
				result.Attempted, result.Synced, result.Failed, result.Rejected, app.queue.Len())
			return nil
		},
	}
}

func discardCommands(app *docsyncInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <submission-id>",
		Short: "abandon a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.queue.Discard(cmd.Context(), args[0]) {
				return fmt.Errorf("submission %s is not pending", args[0])
			}
			fmt.Printf("Discarded %s\n", args[0])
			return nil
		},
	}
}
