package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riptide-dl/riptide/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch downloads live in the terminal",
	Run: func(cmd *cobra.Command, args []string) {
		port := requireDaemon()
		if err := tui.Run(port); err != nil {
			fmt.Fprintf(os.Stderr, "Error running watch view: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
