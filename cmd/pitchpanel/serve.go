package main

import (
	"context"
	"errors"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/ahrav/pitchpanel/infrastructure/speech"
	"github.com/ahrav/pitchpanel/infrastructure/transport"
	"github.com/ahrav/pitchpanel/internal/application"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides the config file")
	_ = c.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	log := clog.FromContext(ctx)

	hub := transport.NewHub(64)
	capture := transport.NewSocketCapture(8)
	panel, err := application.NewPanel(ctx, c.cfg, application.Dependencies{
		Client:  c.client,
		Capture: capture,
		Speaker: &speech.LogSpeaker{},
		Sink:    hub,
		Metrics: c.metrics,
	})
	if err != nil {
		return err
	}
	defer panel.Close()

	server := transport.NewServer(ctx, panel, transport.Options{
		Hub:     hub,
		Capture: capture,
		Metrics: c.metrics.Handler(),
	})

	errc := make(chan error, 1)
	go func() { errc <- server.Listen(c.cfg.Server.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
