package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/minisuite/minisuite/internal/config"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, runtime and library versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !extended {
			_, err := fmt.Fprintf(out, "%s %s\n", config.AppName, versionInfo.Version)
			return err
		}

		lib := crucible.GetVersion()
		lines := []string{
			fmt.Sprintf("%s %s", config.AppName, versionInfo.Version),
			"",
			"Commit:   " + versionInfo.Commit,
			"Built:    " + versionInfo.BuildDate,
			"Go:       " + runtime.Version(),
			"Gofulmen: " + lib.Gofulmen,
			"Crucible: " + lib.Crucible,
		}
		_, err := fmt.Fprint(out, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
