package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/minisuite/minisuite/internal/core"
)

// MarkdownFormatter renders listings as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatUsers(users []core.User) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Users\n\n")
	sb.WriteString("| ID | Email | Name | Role | Created |\n")
	sb.WriteString("|----|-------|------|------|---------|\n")
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(u.ID),
			escapeMarkdownCell(u.Email),
			escapeMarkdownCell(displayName(u)),
			escapeMarkdownCell(string(u.Role)),
			u.CreatedAt.UTC().Format(time.RFC3339),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Total**: %d\n", len(users)))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatBuckets(buckets []core.RateBucket, now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Rate limit buckets\n\n")
	sb.WriteString("| Client | Count | Window Reset | State |\n")
	sb.WriteString("|--------|-------|--------------|-------|\n")
	for _, b := range buckets {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
			escapeMarkdownCell(b.ClientKey),
			b.Count,
			b.WindowResetAt.UTC().Format(time.RFC3339),
			bucketState(b, now),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Total**: %d\n", len(buckets)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
