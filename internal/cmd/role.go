package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/instamo/internal/engine"
)

// roleCmd is how the native runtime launches role processes:
//
//	instamo role --path <dirs> <entry> [args...]
var roleCmd = &cobra.Command{
	Use:                "role",
	Short:              "Run a native engine role",
	Hidden:             true,
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(engine.Main(args))
	},
}

func init() {
	rootCmd.AddCommand(roleCmd)
}
