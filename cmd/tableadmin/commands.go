package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/auth"
	"github.com/youssefsiam38/tableadmin/leadership"
)

var (
	userEmail     string
	userPassword  string
	userSuperuser bool
	dryRun        bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the admin user, session and lease tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd.Context(), func(ctx context.Context, admin *tableadmin.Admin) error {
			if err := admin.Migrate(ctx); err != nil {
				return err
			}
			if err := leadership.NewSQLStore(admin.Conn()).Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrated", auth.UsersTable, auth.SessionsTable, "and", leadership.LeasesTable)
			return nil
		})
	},
}

var createUserCmd = &cobra.Command{
	Use:   "createuser [username]",
	Short: "Create an admin user",
	Long: `Creates a user allowed to sign in to the admin.

The password is read from --password, TABLEADMIN_PASSWORD or the first
line of standard input, in that order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withAdmin(cmd.Context(), func(ctx context.Context, admin *tableadmin.Admin) error {
			if err := admin.Migrate(ctx); err != nil {
				return err
			}
			u, err := admin.Auth().CreateUser(ctx, auth.User{
				Username:  args[0],
				Email:     userEmail,
				Active:    true,
				Admin:     true,
				Superuser: userSuperuser,
			}, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", u.Username, u.ID)
			return nil
		})
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the configured tables in dependency order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd.Context(), func(ctx context.Context, admin *tableadmin.Admin) error {
			return printTables(cmd.OutOrStdout(), admin)
		})
	},
}

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage uploaded media files",
}

var mediaCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete media files no row refers to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd.Context(), func(ctx context.Context, admin *tableadmin.Admin) error {
			unused, err := admin.DeleteUnusedMedia(ctx, dryRun)
			if err != nil {
				return err
			}
			printUnusedMedia(cmd.OutOrStdout(), unused, dryRun)
			return nil
		})
	},
}

func init() {
	createUserCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "Password (prefer TABLEADMIN_PASSWORD or stdin)")
	createUserCmd.Flags().BoolVar(&userSuperuser, "superuser", false, "Grant superuser rights")

	mediaCleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the files that would be deleted")
}

// withAdmin opens the database, builds the admin and runs fn.
func withAdmin(ctx context.Context, fn func(ctx context.Context, admin *tableadmin.Admin) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, e.DatabaseURL, e.DatabaseDriver)
	if err != nil {
		return err
	}
	defer db.Close()

	admin, err := db.buildAdmin(ctx, e, e.ConfigFile, newLogger(logger))
	if err != nil {
		return err
	}
	return fn(ctx, admin)
}

func readPassword(stdin io.Reader) (string, error) {
	if userPassword != "" {
		return userPassword, nil
	}
	if p := os.Getenv(envPrefix + "PASSWORD"); p != "" {
		return p, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func printTables(w io.Writer, admin *tableadmin.Admin) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tGROUP\tCOLUMNS\tFILTERS\tMEDIA")
	for _, name := range admin.DependencyOrder() {
		t, err := admin.Table(name)
		if err != nil {
			return err
		}
		group := t.Config.MenuGroup
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, group,
			strings.Join(t.VisibleColumns, ","),
			orDash(strings.Join(t.VisibleFilters, ",")),
			orDash(strings.Join(t.MediaColumns(), ",")))
	}
	return tw.Flush()
}

func printUnusedMedia(w io.Writer, unused map[string][]string, dryRun bool) {
	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	storages := make([]string, 0, len(unused))
	total := 0
	for s, keys := range unused {
		storages = append(storages, s)
		total += len(keys)
	}
	sort.Strings(storages)
	for _, s := range storages {
		for _, key := range unused[s] {
			fmt.Fprintf(w, "%s %s: %s\n", verb, s, key)
		}
	}
	fmt.Fprintf(w, "%s %s unused %s\n", verb, humanize.Comma(int64(total)), plural(total, "file", "files"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
