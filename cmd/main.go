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
	"os"

	"github.com/civicdocs/docsync/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Docsync is the operator CLI wrapping the offline queue.
type Docsync struct {
	cmd *cobra.Command
}

// recoverPanic logs a panic and exits with an error status.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and environment into the config store.
func loadConfig(configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		return nil
	}
}

// preRun loads the configuration and builds the queue before any queue command.
func preRun(app *docsyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(configFile)(cmd, args); err != nil {
			return err
		}
		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		return app.setup(cmd.Context(), cnf)
	}
}

// postRun flushes notifications and releases stores and exporters.
func postRun(app *docsyncInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return app.close(cmd.Context())
	}
}

// NewCLI builds the root command and its subcommands.
func NewCLI() *Docsync {
	var configFile string
	app := &docsyncInstance{}

	rootCmd := &cobra.Command{
		Use:           "docsync",
		Short:         "Offline submission queue for civic document registration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./docsync.json", "Configuration file for docsync")

	rootCmd.PersistentPreRunE = preRun(app, &configFile)
	rootCmd.PersistentPostRunE = postRun(app)

	rootCmd.AddCommand(enqueueCommands(app))
	rootCmd.AddCommand(listCommands(app))
	rootCmd.AddCommand(rejectedCommands(app))
	rootCmd.AddCommand(syncCommands(app))
	rootCmd.AddCommand(discardCommands(app))
	rootCmd.AddCommand(watchCommands(app))
	rootCmd.AddCommand(migrateCommands(&configFile))
	rootCmd.AddCommand(configCommands(&configFile))

	return &Docsync{cmd: rootCmd}
}

func (d Docsync) executeCLI() {
	if err := d.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
