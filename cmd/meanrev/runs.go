package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/newthinker/meanrev/internal/config"
	"github.com/newthinker/meanrev/internal/report"
	"github.com/newthinker/meanrev/internal/storage/archive"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Archived run operations",
	Long:  `Commands for browsing backtest runs saved in the archive.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsCSVCmd = &cobra.Command{
	Use:   "csv <id>",
	Short: "Print the per-bar equity CSV of an archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsCSV,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCSVCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

// withArchive handles common archive setup.
func withArchive(fn func(ctx context.Context, a *archive.RunArchive) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := openArchive(cfg.Archive)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, a)
}

// openArchive opens the configured archive whether or not saving is enabled.
func openArchive(cfg config.ArchiveConfig) (*archive.RunArchive, error) {
	store, err := archive.Open(cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return archive.NewRunArchive(store), nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *archive.RunArchive) error {
		return listRuns(ctx, a, cmd.OutOrStdout())
	})
}

func listRuns(ctx context.Context, a *archive.RunArchive, out io.Writer) error {
	ids, err := a.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No archived runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSYMBOL\tBARS\tRETURN\tSHARPE")
	for _, id := range ids {
		rec, err := a.Load(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.3f\n",
			rec.ID,
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.Symbol,
			len(rec.EquityCurve),
			report.Percent(rec.Stats.TotalReturn),
			rec.Performance.SharpeRatio,
		)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *archive.RunArchive) error {
		rec, err := a.Load(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Render(rec.Result(), rec.ID))
		return nil
	})
}

func runRunsCSV(cmd *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *archive.RunArchive) error {
		data, err := a.EquityCSV(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	})
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	return withArchive(func(ctx context.Context, a *archive.RunArchive) error {
		if err := a.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		return nil
	})
}
