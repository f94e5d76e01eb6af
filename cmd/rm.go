package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"cancel"},
	Short:   "Cancel a download and remove it from the list",
	Long: `Cancel a download. By default the partial file is deleted unless the
download had already completed; --keep-file and --delete-file override that.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keep, _ := cmd.Flags().GetBool("keep-file")
		del, _ := cmd.Flags().GetBool("delete-file")
		if keep && del {
			fmt.Fprintln(os.Stderr, "Error: --keep-file and --delete-file are mutually exclusive")
			os.Exit(1)
		}

		path := "/api/downloads/" + args[0]
		switch {
		case keep:
			path += "?delete_file=false"
		case del:
			path += "?delete_file=true"
		}

		port := requireDaemon()
		if err := apiDo(port, http.MethodDelete, path, nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %s.\n", shortID(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().Bool("keep-file", false, "Keep the file on disk")
	rmCmd.Flags().Bool("delete-file", false, "Delete the file on disk even if completed")
}
