package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

type rootOptions struct {
	configFile string
	logLevel   string

	cfg    *common.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "auditctl",
		Short:         "Audit expense documents against a travel authorization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override")

	cmd.AddCommand(
		newRunCmd(opts),
		newExtractCmd(opts),
		newDecomposeCmd(opts),
		newMigrateCmd(opts),
		newDBHealthCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return err
		}
	}
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := common.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

// require validates the configuration section a command depends on.
func (o *rootOptions) require(section any) error {
	if err := common.ValidateStruct(section); err != nil {
		return common.NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	return nil
}
