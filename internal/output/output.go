package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/minisuite/minisuite/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formatter renders admin listings.
type Formatter interface {
	FormatUsers(users []core.User) (string, error)
	FormatBuckets(buckets []core.RateBucket, now time.Time) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// bucketState describes a bucket relative to now.
func bucketState(b core.RateBucket, now time.Time) string {
	if !now.Before(b.WindowResetAt) {
		return "expired"
	}
	return "resets in " + b.WindowResetAt.Sub(now).Round(time.Second).String()
}

func displayName(u core.User) string {
	if strings.TrimSpace(u.Name) == "" {
		return "-"
	}
	return u.Name
}
