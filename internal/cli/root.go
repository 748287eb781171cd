package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/subtle/internal/config"
	"github.com/forPelevin/subtle/internal/platform/logger"
)

// commandContext loads configuration and the logger once per invocation.
type commandContext struct {
	configFlag   string
	logLevelFlag string

	cfg     *config.Config
	cfgPath string
	log     *logger.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, path, err := config.Load(c.configFlag)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.logLevelFlag != "" {
		cfg.Logging.Level = c.logLevelFlag
	}
	c.cfg, c.cfgPath = cfg, path
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*logger.Logger, error) {
	if c.log != nil {
		return c.log, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if c.cfgPath != "" {
		log.Debug("config loaded", "path", c.cfgPath)
	}
	c.log = log
	return log, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "subtle",
		Short:         "Turn audio and video into readable SRT subtitles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (TOML or YAML)")
	root.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newTranscribeCommand(ctx))
	root.AddCommand(newRestructureCommand())
	root.AddCommand(newJobsCommand(ctx))
	root.AddCommand(newLanguagesCommand())
	return root
}
