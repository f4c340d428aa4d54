package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/frontdesk/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the configuration file",
			RunE: func(cmd *cobra.Command, args []string) error {
				schema, err := config.JSONSchema()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return err
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigValidate(cmd, configPath())
			},
		},
	)
	return cmd
}

func runConfigValidate(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
		}
		return err
	}

	source := path
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(out, "Configuration OK (%s)\n", source)
	if err := cfg.RequireGateway(); err != nil {
		fmt.Fprintf(out, "  serve: %v\n", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		fmt.Fprintf(out, "  backend: %v\n", err)
	}
	return nil
}
