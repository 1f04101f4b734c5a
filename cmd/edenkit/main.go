package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/EdenKit/config"
	"github.com/AltairaLabs/EdenKit/logger"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "edenkit",
		Short:         "EdenKit - certificate-gated workflow orchestration with ledger settlement",
		Version:       GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `EdenKit runs declarative workflows whose steps are gated by an orchestrator
certificate. Authority steps write to the ledger, debit payer wallets and
distribute settlement fees.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Flags().Changed("verbose") {
				logger.SetVerbose(opts.verbose)
			}
		},
	}
	cmd.SetVersionTemplate(GetVersionInfo() + "\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default: edenkit.yaml in . or ./config)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newValidateCmd(),
		newRunCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the runtime config and applies the logging section.
// --verbose wins over the configured level.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
