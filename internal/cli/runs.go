package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/harun/toolhub/pkg/store"
)

var (
	runsTool   string
	runsErrors bool
	runsLimit  int
	runsSince  time.Duration
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent tool runs",
	Long: `Show recent tool runs from the run log, newest first. With --tool a
usage summary for that tool is printed as well.`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsTool, "tool", "", "only show runs of this tool")
	runsCmd.Flags().BoolVar(&runsErrors, "errors", false, "only show failed runs")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", store.DefaultRecentLimit, "maximum number of runs")
	runsCmd.Flags().DurationVar(&runsSince, "since", 0, "only show runs newer than this, e.g. 1h")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print runs as JSON")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	filter := store.RunFilter{
		ToolName:   runsTool,
		ErrorsOnly: runsErrors,
		Limit:      runsLimit,
	}
	if runsSince > 0 {
		filter.Since = time.Now().Add(-runsSince)
	}

	runs, err := a.RunLogs().Recent(ctx, filter)
	if err != nil {
		return err
	}
	if runsJSON {
		return printJSON(out, runs)
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "WHEN\tTOOL\tSTATUS\tSOURCE\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1fms\t%s\n",
			humanize.Time(r.CreatedAt), r.ToolName, r.Status(), r.Source, r.ExecutionTimeMS, r.ErrorType)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if runsTool != "" {
		usage, err := a.RunLogs().StatsForTool(ctx, runsTool)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s: %s runs, %.1f%% successful, %.1fms average\n",
			usage.ToolName, humanize.Comma(int64(usage.Total)), usage.SuccessRate, usage.AverageTimeMS)
	}
	return nil
}
