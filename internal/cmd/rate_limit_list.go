package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/minisuite/minisuite/internal/core/store"
	"github.com/minisuite/minisuite/internal/output"
)

var (
	rateLimitListOutput string
	rateLimitListOut    string
	rateLimitListOutDir string
	rateLimitListAll    bool
	rateLimitListKey    string
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rate limit buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}

		query := store.RateBucketQuery{
			All:    rateLimitListAll,
			Key:    strings.TrimSpace(rateLimitListKey),
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Key == "" && query.Prefix == "" {
			query.All = true
		}

		admin, err := openBucketAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer admin.Close() // nolint:errcheck // best-effort cleanup

		buckets, err := admin.List(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, err := resolveOutPath(rateLimitListOut, rateLimitListOutDir, "rate-limit.list", format)
		if err != nil {
			return err
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatBuckets(buckets, time.Now().UTC())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

// resolveOutPath applies the --out / --out-dir pair for a named report.
func resolveOutPath(out, dir, name string, format output.Format) (string, error) {
	outPath := strings.TrimSpace(out)
	outDir := strings.TrimSpace(dir)
	if outPath != "" && outDir != "" {
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	if outDir == "" {
		return outPath, nil
	}
	outDir, err := ensureOutDir(outDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(outDir, fmt.Sprintf("%s.%s", name, outputExtension(format))), nil
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOut, "out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutDir, "out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all buckets")
	rateLimitListCmd.Flags().StringVar(&rateLimitListKey, "key", "", "List a single client key")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List client keys with matching prefix")
}
