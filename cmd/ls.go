package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List downloads",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		port := requireDaemon()

		var views []types.DownloadView
		if err := apiDo(port, http.MethodGet, "/api/downloads", nil, &views); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(views, "", "  ")
			fmt.Println(string(data))
			return
		}

		if len(views) == 0 {
			fmt.Println("No downloads.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tPROGRESS\tSIZE\tSPEED")
		fmt.Fprintln(w, "--\t--------\t------\t--------\t----\t-----")

		for _, v := range views {
			progress := "-"
			if v.Progress.Total > 0 {
				progress = fmt.Sprintf("%.1f%%", v.Progress.Percentage)
			}

			size := "-"
			if v.Progress.Total > 0 {
				size = humanize.IBytes(uint64(v.Progress.Total))
			}

			speed := "-"
			if v.Status == types.StatusDownloading && v.Progress.SpeedBPS > 0 {
				speed = humanize.IBytes(uint64(v.Progress.SpeedBPS)) + "/s"
			}

			filename := v.Filename
			if len(filename) > 30 {
				filename = filename[:27] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(v.ID), filename, v.Status, progress, size, speed)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("json", false, "Output in JSON format")
}
