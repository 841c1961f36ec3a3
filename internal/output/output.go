// Package output formats CLI messages and search results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/ragsearch/internal/search"
)

// snippetLen bounds the chunk text shown per result.
const snippetLen = 200

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	accent   lipgloss.Style
	dim      lipgloss.Style
}

// New creates a Writer. Color is used only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		_, noColor := os.LookupEnv("NO_COLOR")
		w.useColor = !noColor
	}
	w.setStyles()
	return w
}

// WithColor forces color on or off.
func (w *Writer) WithColor(on bool) *Writer {
	w.useColor = on
	w.setStyles()
	return w
}

func (w *Writer) setStyles() {
	w.accent, w.dim = lipgloss.NewStyle(), lipgloss.NewStyle()
	if w.useColor {
		w.accent = w.accent.Bold(true).Foreground(lipgloss.Color("154"))
		w.dim = w.dim.Foreground(lipgloss.Color("245"))
	}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints an indented block.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints ranked search results. Hybrid results also show their text
// and vector components.
func (w *Writer) Results(results []search.ScoredChunk, hybrid bool) {
	if len(results) == 0 {
		w.Status("", "No results.")
		return
	}
	for i, r := range results {
		header := fmt.Sprintf("%2d. %s", i+1, w.accent.Render(fmt.Sprintf("%.4f", r.Score)))
		if hybrid {
			header += w.dim.Render(fmt.Sprintf("  (text %.4f, vector %.4f)", r.TextScore, r.VectorScore))
		}
		header += "  " + r.ChunkID
		if r.Source != "" {
			header += w.dim.Render("  [" + r.Source + "]")
		}
		_, _ = fmt.Fprintln(w.out, header)
		if r.Description != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.dim.Render(Snippet(r.Description, snippetLen)))
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", Snippet(r.Text, snippetLen))
	}
}

// Snippet collapses whitespace in s and cuts it to at most n runes.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
