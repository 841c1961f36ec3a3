package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

// StatusInfo describes one database and its live indexes.
type StatusInfo struct {
	Path      string          `json:"path"`
	SizeBytes int64           `json:"size_bytes"`
	Backend   string          `json:"lexical_backend"`
	IndexType string          `json:"vector_index"`
	Store     *store.Stats    `json:"store"`
	Indexes   []registry.Info `json:"indexes"`
	LoadTime  time.Duration   `json:"load_duration_ns,omitempty"`
}

// StatusRenderer displays database status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Database: "+info.Path))
	_, _ = fmt.Fprintf(r.out, "  Size:         %s\n", FormatBytes(info.SizeBytes))
	_, _ = fmt.Fprintf(r.out, "  Lexical:      %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "  Vector index: %s\n", info.IndexType)
	if info.LoadTime > 0 {
		_, _ = fmt.Fprintf(r.out, "  Load time:    %s\n", formatDuration(info.LoadTime))
	}
	_, _ = fmt.Fprintln(r.out)

	if s := info.Store; s != nil {
		_, _ = fmt.Fprintln(r.out, "  Contents:")
		_, _ = fmt.Fprintf(r.out, "    Documents:  %d\n", s.Documents)
		_, _ = fmt.Fprintf(r.out, "    Chunks:     %d\n", s.Chunks)
		_, _ = fmt.Fprintf(r.out, "    Images:     %d\n", s.Images)
		_, _ = fmt.Fprintf(r.out, "    Parsed:     %d\n", s.ParsedArtifacts)
		_, _ = fmt.Fprintf(r.out, "    Embeddings: %d\n", s.Embeddings)
		for _, k := range sortedKeys(s.ByCategory) {
			_, _ = fmt.Fprintf(r.out, "    %s %d\n", r.styles.Label.Render(fmt.Sprintf("%-11s", k+":")), s.ByCategory[k])
		}
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, "  Indexes:")
	if len(info.Indexes) == 0 {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Warning.Render("none"))
		return nil
	}
	for _, idx := range info.Indexes {
		_, _ = fmt.Fprintf(r.out, "    %s  %s  dim=%d  vectors=%d\n",
			r.styles.Active.Render(idx.Model), idx.Kind, idx.Dim, idx.Len)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
