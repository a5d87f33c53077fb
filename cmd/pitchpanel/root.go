package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrav/pitchpanel/infrastructure/middleware"
	"github.com/ahrav/pitchpanel/internal/application"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// clientFactory builds the completion client shared by every judge.
type clientFactory func(application.LLMConfig, application.Secrets, ports.MetricsCollector) (ports.LLMClient, error)

func defaultClient(cfg application.LLMConfig, secrets application.Secrets, metrics ports.MetricsCollector) (ports.LLMClient, error) {
	client, err := application.NewClient(cfg, secrets, metrics)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// cli is the state shared by the subcommands once the root has loaded
// configuration.
type cli struct {
	v         *viper.Viper
	newClient clientFactory

	cfg     *application.Config
	metrics *middleware.PrometheusMetrics
	client  ports.LLMClient
}

func newRootCmd(c *cli) *cobra.Command {
	c.v = viper.New()

	root := &cobra.Command{
		Use:   "pitchpanel",
		Short: "Rehearse a pitch in front of a simulated judge panel",
		Long: `pitchpanel runs a live Q&A between you and a panel of judge personas,
then has the judges score the pitch independently, negotiate a consensus
per rubric category and write up a feedback report.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "panel config file (YAML)")
	flags.String("env-file", ".env", "dotenv file holding provider API keys")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("provider", "", "completion provider, overrides the config file")
	flags.String("model", "", "completion model, overrides the config file")
	flags.String("catalog", "", "persona catalog file, overrides the config file")
	for _, name := range []string{"config", "env-file", "log-level", "provider", "model", "catalog"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	c.v.SetEnvPrefix("PITCHPANEL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(newServeCmd(c), newRehearseCmd(c), newEvaluateCmd(c))
	return root
}

// setup installs the logger, loads configuration and secrets and builds
// the completion client.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := clog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	ctx := clog.WithLogger(cmd.Context(), logger)
	cmd.SetContext(ctx)

	cfg := application.DefaultConfig()
	if path := c.v.GetString("config"); path != "" {
		loaded, err := application.LoadConfigFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if v := c.v.GetString("provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := c.v.GetString("model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := c.v.GetString("catalog"); v != "" {
		cfg.CatalogPath = v
	}
	if cmd.Flags().Lookup("addr") != nil {
		if v := c.v.GetString("addr"); v != "" {
			cfg.Server.Addr = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	secrets, err := application.LoadSecrets(ctx, c.v.GetString("env-file"))
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.metrics = middleware.NewPrometheusMetrics(nil)
	c.client, err = c.newClient(cfg.LLM, secrets, c.metrics)
	if err != nil {
		return err
	}
	logger.With("provider", cfg.LLM.Provider, "model", c.client.GetModel()).Debug("completion client ready")
	return nil
}
