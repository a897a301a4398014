package main

import (
	"github.com/spf13/cobra"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/config"
	gmailplugin "github.com/ArionMiles/finanzas/pkg/plugins/readers/gmail"
	mboxplugin "github.com/ArionMiles/finanzas/pkg/plugins/readers/mbox"
	csvplugin "github.com/ArionMiles/finanzas/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/finanzas/pkg/plugins/writers/json"
	postgresplugin "github.com/ArionMiles/finanzas/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/ArionMiles/finanzas/pkg/plugins/writers/sheets"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	envFile    string
	configFile string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(config.Options{
		EnvFiles: []string{o.envFile},
		File:     o.configFile,
	})
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "finanzas",
		Short:   "Track Bancolombia and Nubank transactions from email notifications",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional JSON config file, overridden by the environment")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newParseCommand(),
		newSetupCommand(opts),
		newStatusCommand(opts),
		newPluginsCommand(),
		newDumpCommand(opts),
		newSummaryCommand(opts),
	)

	return rootCmd
}

// newRegistry returns a registry with every built-in plugin.
func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	for _, p := range []plugins.ReaderPlugin{
		&gmailplugin.Plugin{},
		&mboxplugin.Plugin{},
	} {
		if err := registry.RegisterReader(p); err != nil {
			return nil, err
		}
	}

	for _, p := range []plugins.WriterPlugin{
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
		&postgresplugin.Plugin{},
		&sheetsplugin.Plugin{},
	} {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
