package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load tool and handler definitions from a YAML file",
	Long: `Load tool and handler definitions from a YAML file into the store.
Records are upserted by name. Without an argument the configured
definitions_file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	path := a.Config().DefinitionsFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no definitions file given and definitions_file is not configured")
	}

	res, err := a.Seed(commandContext(cmd), path)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d handler(s) and %d tool(s) from %s\n", res.Handlers, res.Tools, path)
	return nil
}
