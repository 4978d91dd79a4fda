package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/labeldash/internal/history"
	"github.com/nerrad567/labeldash/internal/infrastructure/database"
	"github.com/nerrad567/labeldash/migrations"
)

func newJobsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the local print job history",
	}
	cmd.AddCommand(newJobsListCmd(v))
	cmd.AddCommand(newJobsPruneCmd(v))
	return cmd
}

func newJobsListCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent print jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd.Context(), v, func(repo *history.Repository) error {
				entries, err := repo.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of jobs to show")
	return cmd
}

func newJobsPruneCmd(v *viper.Viper) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete print jobs older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withHistory(cmd.Context(), v, func(repo *history.Repository) error {
				n, err := repo.Prune(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d jobs\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest job to keep")
	return cmd
}

// withHistory opens and migrates the configured database for fn.
func withHistory(ctx context.Context, v *viper.Viper, fn func(*history.Repository) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return fn(history.NewRepository(db.DB))
}

func printEntries(out io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no print jobs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMITTED\tJOB\tQTY\tTOPIC\tITEMS")
	for _, e := range entries {
		keys := make([]string, 0, len(e.Items))
		for _, it := range e.Items {
			keys = append(keys, it.Key)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.SubmittedAt.Local().Format(time.DateTime),
			e.JobID,
			e.Qty,
			e.Topic,
			strings.Join(keys, ","),
		)
	}
	return tw.Flush()
}
