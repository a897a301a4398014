package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newPluginsCommand() *cobra.Command {
	var schema bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List available reader and writer plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Readers (FINANZAS_READER):")
			for _, p := range registry.ListReaders() {
				if err := printPlugin(out, p.Name(), p.Description(), p.RequiredScopes(), p.ConfigSchema(), schema); err != nil {
					return err
				}
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Writers (FINANZAS_WRITER):")
			for _, p := range registry.ListWriters() {
				if err := printPlugin(out, p.Name(), p.Description(), p.RequiredScopes(), p.ConfigSchema(), schema); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&schema, "schema", false, "print each plugin's config JSON schema")

	return cmd
}

func printPlugin(out io.Writer, name, description string, scopes []string, configSchema map[string]any, withSchema bool) error {
	fmt.Fprintf(out, "  %-10s %s\n", name, description)
	if len(scopes) > 0 {
		fmt.Fprintf(out, "  %-10s scopes: %s\n", "", strings.Join(scopes, ", "))
	}
	if !withSchema || configSchema == nil {
		return nil
	}

	data, err := json.MarshalIndent(configSchema, "    ", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s schema: %w", name, err)
	}
	fmt.Fprintf(out, "    %s\n", data)
	return nil
}
