package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// WriteTable writes one Markdown table row per consensus category.
func WriteTable(w io.Writer, r domain.Report) error {
	table := newTable(w, []string{"Category", "Initial", "Final", "Change", "Range", "Consensus"})

	for _, category := range sortedKeys(r.Consensus.FinalScores) {
		change := r.MetaAnalysis.ScoreChanges[category]
		if err := table.Append([]string{
			category,
			formatScores(change.InitialScores),
			fmt.Sprintf("%.2f", r.Consensus.FinalScores[category]),
			fmt.Sprintf("%.2f", change.AverageChange),
			fmt.Sprintf("%.2f", change.ScoreRange),
			reachedLabel(r, category),
		}); err != nil {
			return fmt.Errorf("append row %s: %w", category, err)
		}
	}
	return table.Render()
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 80,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}

	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func formatScores(scores []float64) string {
	if len(scores) == 0 {
		return "-"
	}
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%g", s)
	}
	return strings.Join(parts, ", ")
}

// reachedLabel reports whether the category settled on an agreed score.
func reachedLabel(r domain.Report, category string) string {
	if len(r.MetaAnalysis.ScoreChanges[category].InitialScores) == 0 {
		return "no scores"
	}
	if !r.Consensus.DetailedDiscussions[category].Reached {
		return "average"
	}
	return "agreed"
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
