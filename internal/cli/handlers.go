package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var handlersValidate bool

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List handlers and check that they resolve",
	Long: `List handler records. With --validate every handler is resolved against
the registered factories and script checks, and the command fails if an
active handler is broken.`,
	Args: cobra.NoArgs,
	RunE: runHandlers,
}

func init() {
	handlersCmd.Flags().BoolVar(&handlersValidate, "validate", false, "resolve every handler and report problems")
	rootCmd.AddCommand(handlersCmd)
}

func runHandlers(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if handlersValidate {
		reports, err := a.Resolver().ValidateAll(ctx)
		if err != nil {
			return err
		}

		broken := 0
		tw := newTable(out)
		fmt.Fprintln(tw, "NAME\tREF\tACTIVE\tVALID\tDIAGNOSTIC")
		for _, r := range reports {
			if r.Active && !r.Valid {
				broken++
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Ref, yesNo(r.Active), yesNo(r.Valid), r.Diagnostic)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if broken > 0 {
			return fmt.Errorf("%d active handler(s) failed validation", broken)
		}
		return nil
	}

	handlers, err := a.Store().ListHandlers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list handlers: %w", err)
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "NAME\tKIND\tACTIVE\tBUILT-IN\tDESCRIPTION")
	for _, h := range handlers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.Name, h.Kind, yesNo(h.Active), yesNo(h.BuiltIn), h.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats, err := a.Resolver().Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d handlers, %d active, %d built-in, %d custom, %d in use\n",
		stats.Total, stats.Active, stats.BuiltIn, stats.Custom, stats.InUse)
	return nil
}
