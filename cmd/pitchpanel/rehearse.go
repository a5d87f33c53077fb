package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/pitchpanel/infrastructure/speech"
	"github.com/ahrav/pitchpanel/internal/application"
	"github.com/ahrav/pitchpanel/internal/domain"
	"github.com/ahrav/pitchpanel/internal/ports"
	"github.com/ahrav/pitchpanel/internal/report"
)

// pollInterval is how often rehearse checks whether the Q&A loop ended.
const pollInterval = 100 * time.Millisecond

func newRehearseCmd(c *cli) *cobra.Command {
	var evaluate bool
	cmd := &cobra.Command{
		Use:   "rehearse",
		Short: "Rehearse on the console: the first line is the pitch, later lines answer the judges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.rehearse(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), evaluate)
		},
	}
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "evaluate the transcript when the session ends")
	return cmd
}

func (c *cli) rehearse(ctx context.Context, in io.Reader, out io.Writer, evaluate bool) error {
	panel, err := application.NewPanel(ctx, c.cfg, application.Dependencies{
		Client:  c.client,
		Capture: speech.NewConsoleCapture(in),
		Speaker: &speech.LogSpeaker{},
		Sink: ports.TranscriptSinkFunc(func(e domain.TranscriptEntry) {
			fmt.Fprintf(out, "%s: %s\n", e.Speaker, e.Text)
		}),
		Metrics: c.metrics,
	})
	if err != nil {
		return err
	}
	defer panel.Close()

	if err := panel.StartSession(ctx); err != nil {
		return fmt.Errorf("rehearsal ended before the pitch: %w", err)
	}
	if err := panel.BeginQnA(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for panel.SessionState().QnAInProgress {
		select {
		case <-ctx.Done():
			panel.StopSession()
		case <-ticker.C:
		}
	}

	if !evaluate {
		return nil
	}
	r, failure := panel.EvaluateSession(context.WithoutCancel(ctx), nil)
	if failure != nil {
		return fmt.Errorf("evaluation failed (%s): %s", failure.Category, failure.Error)
	}
	_, err = io.WriteString(out, report.Markdown(*r))
	return err
}
