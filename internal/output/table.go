package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/minisuite/minisuite/internal/core"
)

// newTable returns a rounded table whose footer keeps its case; go-pretty
// upper-cases footers by default.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// TableFormatter renders listings as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatUsers(users []core.User) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Email", "Name", "Role", "Created"})

	for _, u := range users {
		t.AppendRow(table.Row{
			u.ID,
			u.Email,
			displayName(u),
			string(u.Role),
			u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d user(s)", len(users))})
	return t.Render(), nil
}

func (f *TableFormatter) FormatBuckets(buckets []core.RateBucket, now time.Time) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Client", "Count", "Window Reset", "State"})

	for _, b := range buckets {
		t.AppendRow(table.Row{
			b.ClientKey,
			b.Count,
			b.WindowResetAt.UTC().Format(time.RFC3339),
			bucketState(b, now),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d bucket(s)", len(buckets))})
	return t.Render(), nil
}
