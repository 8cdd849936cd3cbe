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
	"errors"
	"fmt"

	"github.com/civicdocs/docsync/config"
	"github.com/civicdocs/docsync/internal/kvstore"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

// migrateCommands manages the schema of the SQLite store. It only needs the
// configuration, so it replaces the root pre-run hook.
func migrateCommands(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "migrate",
		Short:             "manage the sqlite store schema",
		PersistentPreRunE: loadConfig(configFile),
	}

	cmd.AddCommand(migrateDirectionCommand("up", "apply pending migrations", migrate.Up, "Applied %d migrations!\n"))
	cmd.AddCommand(migrateDirectionCommand("down", "roll back migrations", migrate.Down, "Rolled back %d migrations!\n"))

	return cmd
}

func migrateDirectionCommand(use, short string, dir migrate.MigrationDirection, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cnf, err := config.Fetch()
			if err != nil {
				return err
			}
			if cnf.Store.Driver != "sqlite" {
				return errors.New("migrations only apply to the sqlite store driver")
			}

			db, err := kvstore.ConnectSQLite(cnf.Store.Path)
			if err != nil {
				return fmt.Errorf("error connecting to database: %w", err)
			}
			defer db.Close()

			n, err := kvstore.Migrate(db, dir)
			if err != nil {
				return err
			}
			fmt.Printf(done, n)
			return nil
		},
	}
}
