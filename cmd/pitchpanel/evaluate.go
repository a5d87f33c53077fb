package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ahrav/pitchpanel/internal/application"
	"github.com/ahrav/pitchpanel/internal/report"
)

type evaluateOptions struct {
	pitchPath  string
	categories []string
	asJSON     bool
}

func newEvaluateCmd(c *cli) *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a written pitch and print the panel report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.evaluate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.pitchPath, "pitch", "", `pitch or transcript file ("-" reads stdin)`)
	cmd.Flags().StringSliceVar(&opts.categories, "category", nil, "rubric category to evaluate (repeatable, default all)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("pitch")
	return cmd
}

func (c *cli) evaluate(ctx context.Context, in io.Reader, out io.Writer, opts evaluateOptions) error {
	pitch, err := readPitch(in, opts.pitchPath)
	if err != nil {
		return err
	}

	panel, err := application.NewPanel(ctx, c.cfg, application.Dependencies{
		Client:  c.client,
		Metrics: c.metrics,
	})
	if err != nil {
		return err
	}
	defer panel.Close()

	r, failure := panel.Evaluate(ctx, pitch, opts.categories)
	if failure != nil {
		return fmt.Errorf("evaluation failed (%s): %s", failure.Category, failure.Error)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err = io.WriteString(out, report.Markdown(*r))
	return err
}

func readPitch(in io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read pitch: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read pitch: %w", err)
	}
	return string(data), nil
}
