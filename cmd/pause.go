package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a download, or all of them",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		port := requireDaemon()

		if all {
			if err := apiDo(port, http.MethodPost, "/api/pause-all", nil, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("All downloads paused.")
			return
		}

		if len(args) != 1 {
			cmd.Help()
			os.Exit(1)
		}
		if err := apiDo(port, http.MethodPost, "/api/downloads/"+args[0]+"/pause", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Paused %s.\n", shortID(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	pauseCmd.Flags().BoolP("all", "a", false, "Pause every download")
}
