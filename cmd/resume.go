package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused download, or all of them",
	Long: `Resume a paused download. Resuming a single id starts it immediately,
even while a global pause is in effect.`,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		port := requireDaemon()

		if all {
			if err := apiDo(port, http.MethodPost, "/api/resume-all", nil, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("All downloads resumed.")
			return
		}

		if len(args) != 1 {
			cmd.Help()
			os.Exit(1)
		}
		if err := apiDo(port, http.MethodPost, "/api/downloads/"+args[0]+"/resume", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Resumed %s.\n", shortID(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolP("all", "a", false, "Resume every paused download")
}
