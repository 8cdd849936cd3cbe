package main

import (
	"encoding/json"
	"fmt"

	"github.com/civicdocs/docsync/config"
	"github.com/spf13/cobra"
)

func configCommands(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "config",
		Short:             "config outputs your instance's computed configuration",
		PersistentPreRunE: loadConfig(configFile),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Fetch()
			if err != nil {
				return fmt.Errorf("error getting config: %w", err)
			}

			redacted := *cfg
			redacted.Remote.ApiKey = redact(redacted.Remote.ApiKey)
			redacted.Remote.AccessToken = redact(redacted.Remote.AccessToken)
			redacted.Assets.AwsSecretAccessKey = redact(redacted.Assets.AwsSecretAccessKey)

			data, err := json.MarshalIndent(redacted, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
