package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI renders err for the terminal: message, hint and code. verbose
// adds the underlying cause and the details, sorted by key.
func FormatForCLI(err error, verbose bool) string {
	if err == nil {
		return ""
	}

	re, ok := As(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	if verbose {
		if re.Cause != nil && re.Cause.Error() != re.Message {
			fmt.Fprintf(&sb, "  Cause: %s\n", re.Cause)
		}
		for _, k := range detailKeys(re.Details) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, re.Details[k])
		}
	}
	fmt.Fprintf(&sb, "  Code: %s\n", re.Code)
	return sb.String()
}

// Report is the machine-readable form of a failed command or request.
type Report struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Category  Category          `json:"category"`
	Retryable bool              `json:"retryable"`
	Hint      string            `json:"hint,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewReport builds a Report. Errors that are not RagErrors report as
// ERR_501_INTERNAL.
func NewReport(err error) *Report {
	if err == nil {
		return nil
	}
	re, ok := As(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}
	return &Report{
		Code:      re.Code,
		Message:   re.Message,
		Category:  re.Category,
		Retryable: re.Retryable,
		Hint:      re.Suggestion,
		Details:   re.Details,
	}
}

// FormatJSON encodes err as {"error": Report}.
func FormatJSON(err error) ([]byte, error) {
	return json.Marshal(struct {
		Error *Report `json:"error"`
	}{NewReport(err)})
}

// LogAttrs describes err as slog attributes. A RagError contributes its code,
// category, retryable flag and cause, with details grouped under "details".
// Any other error is logged by message alone.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	re, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", re.Message),
		slog.String("error_code", re.Code),
		slog.String("category", string(re.Category)),
		slog.Bool("retryable", re.Retryable),
	}
	if re.Cause != nil && re.Cause.Error() != re.Message {
		attrs = append(attrs, slog.String("cause", re.Cause.Error()))
	}
	if len(re.Details) > 0 {
		details := make([]any, 0, len(re.Details))
		for _, k := range detailKeys(re.Details) {
			details = append(details, slog.String(k, re.Details[k]))
		}
		attrs = append(attrs, slog.Group("details", details...))
	}
	return attrs
}

func detailKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
