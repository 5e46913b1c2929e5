package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/nwregress/pkg/logging"
)

// ArtifactWriter writes run results for CI to archive.
type ArtifactWriter struct {
	outputDir string
}

// NewArtifactWriter creates a writer for outputDir.
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{outputDir: outputDir}
}

// WriteAll writes result.json and summary.md.
func (w *ArtifactWriter) WriteAll(res *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := w.WriteResultJSON(res); err != nil {
		return err
	}
	return w.WriteSummaryMarkdown(res)
}

// WriteResultJSON writes the full result as JSON
func (w *ArtifactWriter) WriteResultJSON(res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.outputDir, "result.json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write result JSON: %w", err)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable summary
func (w *ArtifactWriter) WriteSummaryMarkdown(res *Result) error {
	var md strings.Builder

	md.WriteString(fmt.Sprintf("# %s\n\n", res.Scenario))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", res.Status))
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", res.RunID))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", res.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", res.Duration.Round(time.Millisecond)))

	md.WriteString("## Steps\n\n")
	for i, step := range res.Steps {
		mark := "✅"
		if !step.Passed {
			mark = "❌"
		}
		md.WriteString(fmt.Sprintf("%d. %s %s (%s)\n", i+1, mark, step.Name, step.Duration.Round(time.Millisecond)))
		if step.Error != "" {
			md.WriteString(fmt.Sprintf("   - `%s`\n", step.Error))
		}
	}
	md.WriteString("\n")

	if len(res.Handles) > 0 {
		md.WriteString(fmt.Sprintf("**Windows:** %s\n\n", strings.Join(res.Handles, ", ")))
	}
	if res.FinalURL != "" {
		md.WriteString(fmt.Sprintf("**Final URL:** %s\n\n", res.FinalURL))
	}
	if res.Error != "" {
		md.WriteString(fmt.Sprintf("## Error\n\n```\n%s\n```\n", res.Error))
	}

	if err := os.WriteFile(filepath.Join(w.outputDir, "summary.md"), []byte(md.String()), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

// Report prints the end-of-run summary to the console.
func Report(c *logging.Console, res *Result) {
	c.Verbosef("run %s took %s", res.RunID, res.Duration.Round(time.Millisecond))
	for _, step := range res.Steps {
		if step.Passed {
			c.Verbosef("ok   %s", step.Name)
			continue
		}
		c.Verbosef("FAIL %s: %s", step.Name, step.Error)
	}
	if res.ReleaseError != "" {
		c.Warnf("session release: %s", res.ReleaseError)
	}
}
