package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/applier"
	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	colorCreated = color.New(color.FgGreen)
	colorPresent = color.New(color.Faint)
	colorFailed  = color.New(color.FgRed, color.Bold)
	colorHeading = color.New(color.Bold)
	colorHint    = color.New(color.FgCyan)
)

// initColors disables colored output when asked to or when NO_COLOR is set.
func initColors(noColor bool, lookup func(string) (string, bool)) {
	if _, ok := lookup("NO_COLOR"); ok || noColor {
		color.NoColor = true
	}
}

func outcomeMark(outcome applier.Outcome) string {
	switch outcome {
	case applier.OutcomeCreated:
		return colorCreated.Sprintf("%-16s", "created")
	case applier.OutcomeAlreadyPresent:
		return colorPresent.Sprintf("%-16s", "already-present")
	}
	return colorFailed.Sprintf("%-16s", "failed")
}

// renderReport writes the human readable report of a run.
func renderReport(w io.Writer, report *applier.ApplyReport, target string) {
	fmt.Fprintf(w, "%s %s -> %s (run %s)\n",
		colorHeading.Sprint("Manifest"), report.Manifest, target, report.RunID)

	for _, entry := range report.Entries {
		fmt.Fprintf(w, "  %s %s\n", outcomeMark(entry.Outcome), entry.ID())
		if entry.Detail != "" {
			fmt.Fprintf(w, "      %s\n", entry.Detail)
		}
		if entry.Error != "" {
			fmt.Fprintf(w, "      error: %s\n", entry.Error)
		}
		if entry.Hint != "" {
			fmt.Fprintf(w, "      %s %s\n", colorHint.Sprint("fix:"), entry.Hint)
		}
	}

	if len(report.Stats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, colorHeading.Sprint("Collections"))
		for _, stats := range report.Stats {
			fmt.Fprintf(w, "  %-24s documents=%d storage=%s indexes=%s\n",
				stats.Name, stats.Documents, formatBytes(stats.StorageSize), formatBytes(stats.TotalIndexSize))
		}
	}

	summary := fmt.Sprintf("%d created, %d already present, %d failed in %s",
		report.Count(applier.OutcomeCreated),
		report.Count(applier.OutcomeAlreadyPresent),
		report.Count(applier.OutcomeFailed),
		report.Duration().Round(time.Millisecond))
	if report.HasFailures() {
		summary = colorFailed.Sprint(summary)
	}
	fmt.Fprintf(w, "\n%s\n", summary)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// manifestSummary is the outcome of validate.
type manifestSummary struct {
	Name        string   `json:"name"`
	Database    string   `json:"database,omitempty"`
	Collections int      `json:"collections"`
	Indexes     int      `json:"indexes"`
	Seeds       int      `json:"seeds"`
	Entries     []string `json:"entries"`
}

func summarize(m *manifest.Manifest) manifestSummary {
	s := manifestSummary{
		Name:        m.Name,
		Database:    m.Database,
		Collections: len(m.Collections()),
		Indexes:     len(m.Indexes()),
		Seeds:       len(m.Seeds()),
		Entries:     make([]string, len(m.Entries)),
	}
	for i := range m.Entries {
		s.Entries[i] = m.Entries[i].Describe()
	}
	return s
}

func renderSummary(w io.Writer, s manifestSummary) {
	fmt.Fprintf(w, "%s %s is valid: %d collections, %d indexes, %d seeds\n",
		colorHeading.Sprint("Manifest"), s.Name, s.Collections, s.Indexes, s.Seeds)
	for _, entry := range s.Entries {
		fmt.Fprintf(w, "  %s\n", entry)
	}
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
