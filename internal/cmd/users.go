package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/store"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/output"
)

var (
	usersListOutput string
	usersListOut    string
	usersListOutDir string
	usersListRole   string
	usersListLimit  int
	usersListOffset int
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(usersListOutput)
		if err != nil {
			return err
		}

		role := core.Role(strings.ToLower(strings.TrimSpace(usersListRole)))
		if role != "" && !role.Valid() {
			return fmt.Errorf("invalid role %q (want user or admin)", usersListRole)
		}

		_, db, err := openStoreFromConfig(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		users, err := db.ListUsers(cmd.Context(), store.UserQuery{
			Limit:  usersListLimit,
			Offset: usersListOffset,
			Role:   role,
		})
		if err != nil {
			return err
		}

		outPath, err := resolveOutPath(usersListOut, usersListOutDir, "users.list", format)
		if err != nil {
			return err
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatUsers(users)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <email> <user|admin>",
	Short: "Change the role of an existing user",
	Long: `Change the role of an existing user.

Tokens already issued keep the role they were signed with until they expire.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := store.NormalizeEmail(args[0])
		role := core.Role(strings.ToLower(strings.TrimSpace(args[1])))
		if !role.Valid() {
			return fmt.Errorf("invalid role %q (want user or admin)", args[1])
		}

		_, db, err := openStoreFromConfig(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.SetUserRole(cmd.Context(), email, role); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user registered with email %s", email)
			}
			return err
		}

		observability.CLILogger.Info("User role updated",
			zap.String("email", email),
			zap.String("role", string(role)))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", email, role)
		return err
	},
}

func init() {
	usersListCmd.Flags().StringVar(&usersListOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml|markdown")
	usersListCmd.Flags().StringVar(&usersListOut, "out", "", "Write output to a file (default stdout)")
	usersListCmd.Flags().StringVar(&usersListOutDir, "out-dir", "", "Write output to a directory")
	usersListCmd.Flags().StringVar(&usersListRole, "role", "", "Only list users with this role")
	usersListCmd.Flags().IntVar(&usersListLimit, "limit", store.DefaultUserListLimit, "Maximum users to list")
	usersListCmd.Flags().IntVar(&usersListOffset, "offset", 0, "Number of users to skip")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersSetRoleCmd)
	rootCmd.AddCommand(usersCmd)
}
