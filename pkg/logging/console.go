package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Level is the verbosity of the console trace.
type Level int

const (
	// LevelQuiet shows only warnings, errors and the final verdict
	LevelQuiet Level = iota
	// LevelNormal shows phase markers and trace lines (default)
	LevelNormal
	// LevelVerbose adds per-step details such as handle lists
	LevelVerbose
	// LevelDebug shows everything
	LevelDebug
)

// ParseLevel converts a verbosity name. Unknown names map to LevelNormal.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "quiet":
		return LevelQuiet
	case "verbose":
		return LevelVerbose
	case "debug":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// ValidLevel reports whether name is a known verbosity.
func ValidLevel(name string) bool {
	switch name {
	case "quiet", "normal", "verbose", "debug":
		return true
	}
	return false
}

// Console prints the human-readable run trace that CI logs capture.
type Console struct {
	level  Level
	writer io.Writer
	phase  int

	phaseStyle   lipgloss.Style
	detailStyle  lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	ruleStyle    lipgloss.Style
}

// NewConsole creates a console trace on stdout.
func NewConsole(level Level) *Console {
	return NewConsoleWriter(level, os.Stdout)
}

// NewConsoleWriter creates a console trace on w. Colors are only emitted when w
// is a terminal.
func NewConsoleWriter(level Level, w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		level:        level,
		writer:       w,
		phaseStyle:   r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		detailStyle:  r.NewStyle().Foreground(lipgloss.Color("8")),
		warnStyle:    r.NewStyle().Foreground(lipgloss.Color("3")),
		errorStyle:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		successStyle: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		ruleStyle:    r.NewStyle().Bold(true),
	}
}

// Level returns the configured verbosity.
func (c *Console) Level() Level {
	return c.level
}

// Header prints a framed title.
func (c *Console) Header(title string) {
	if c.level < LevelNormal {
		return
	}
	rule := c.ruleStyle.Render(strings.Repeat("=", 70))
	fmt.Fprintf(c.writer, "\n%s\n%s\n%s\n", rule, c.ruleStyle.Render("  "+title), rule)
}

// Phase prints a numbered phase marker, e.g. "[3] wait for devtools window".
func (c *Console) Phase(name string) {
	c.phase++
	if c.level < LevelNormal {
		return
	}
	fmt.Fprintln(c.writer, c.phaseStyle.Render(fmt.Sprintf("[%d] %s", c.phase, name)))
}

// Infof prints a plain trace line.
func (c *Console) Infof(format string, args ...interface{}) {
	if c.level < LevelNormal {
		return
	}
	fmt.Fprintln(c.writer, fmt.Sprintf(format, args...))
}

// Verbosef prints detail only shown in verbose mode.
func (c *Console) Verbosef(format string, args ...interface{}) {
	if c.level < LevelVerbose {
		return
	}
	fmt.Fprintln(c.writer, c.detailStyle.Render("→ "+fmt.Sprintf(format, args...)))
}

// Debugf prints detail only shown in debug mode.
func (c *Console) Debugf(format string, args ...interface{}) {
	if c.level < LevelDebug {
		return
	}
	fmt.Fprintln(c.writer, c.detailStyle.Render("[DEBUG] "+fmt.Sprintf(format, args...)))
}

// Warnf prints a warning at every level.
func (c *Console) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(c.writer, c.warnStyle.Render("⚠ Warning: "+fmt.Sprintf(format, args...)))
}

// Errorf prints an error at every level.
func (c *Console) Errorf(format string, args ...interface{}) {
	fmt.Fprintln(c.writer, c.errorStyle.Render("✗ Error: "+fmt.Sprintf(format, args...)))
}

// Verdict prints the final PASS/FAIL line at every level.
func (c *Console) Verdict(name string, passed bool) {
	if passed {
		fmt.Fprintln(c.writer, c.successStyle.Render("✓ PASS "+name))
		return
	}
	fmt.Fprintln(c.writer, c.errorStyle.Render("✗ FAIL "+name))
}
