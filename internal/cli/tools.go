package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	toolsJSON bool
	toolsAll  bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools in the catalog",
	Long: `List tools in the catalog. By default only active tools are shown in
discovery order; --all includes inactive tools and the handler each one
references.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the discovery listing as JSON")
	toolsCmd.Flags().BoolVar(&toolsAll, "all", false, "include inactive tools")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if toolsJSON {
		discovery, err := a.Registry().ListForDiscovery(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, discovery)
	}

	tools, err := a.Store().ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "NAME\tHANDLER\tACTIVE\tDESCRIPTION")
	for _, t := range tools {
		if !t.Active && !toolsAll {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Handler, yesNo(t.Active), t.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats, err := a.Registry().Statistics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d tools, %d active, %d inactive\n", stats.Total, stats.Active, stats.Inactive)
	return nil
}
