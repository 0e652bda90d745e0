package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/minisuite/minisuite/internal/core/store"
	"github.com/minisuite/minisuite/internal/output"
)

var (
	rateLimitResetAll    bool
	rateLimitResetKey    string
	rateLimitResetPrefix string
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
	rateLimitResetOutput string
	rateLimitResetOut    string
	rateLimitResetOutDir string
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete rate limit buckets so clients start a fresh window",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitResetOutput)
		if err != nil {
			return err
		}

		query := store.RateBucketQuery{
			All:    rateLimitResetAll,
			Key:    strings.TrimSpace(rateLimitResetKey),
			Prefix: strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		admin, err := openBucketAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer admin.Close() // nolint:errcheck // best-effort cleanup

		matched, err := admin.Count(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, err := resolveOutPath(rateLimitResetOut, rateLimitResetOutDir, "rate-limit.reset", format)
		if err != nil {
			return err
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if rateLimitResetDryRun {
			return writeRateLimitResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := admin.Reset(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeRateLimitResetResult(format, sink.writer, matched, deleted, false)
	},
}

type rateLimitResetResult struct {
	Matched int   `json:"matched" yaml:"matched"`
	Deleted int64 `json:"deleted" yaml:"deleted"`
	DryRun  bool  `json:"dry_run" yaml:"dry_run"`
}

func writeRateLimitResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := rateLimitResetResult{Matched: matched, Deleted: deleted, DryRun: dryRun}

	switch format {
	case output.FormatJSON:
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	case output.FormatYAML:
		return yaml.NewEncoder(w).Encode(result)
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate limit bucket(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate limit bucket(s)\n", deleted, matched)
	return err
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all buckets")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetKey, "key", "", "Reset a single client key (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset client keys with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOut, "out", "", "Write output to a file (default stdout)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutDir, "out-dir", "", "Write output to a directory")
}
