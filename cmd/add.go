package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/riptide-dl/riptide/internal/utils"
)

var addCmd = &cobra.Command{
	Use:   "add [url]...",
	Short: "Add downloads to the running daemon",
	Long:  `Add one or more URLs to the download queue of the running riptide daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		batchFile, _ := cmd.Flags().GetString("batch")
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")
		folder, _ := cmd.Flags().GetString("folder")
		filename, _ := cmd.Flags().GetString("filename")
		probe, _ := cmd.Flags().GetBool("probe")

		urls := append([]string{}, args...)

		if fromClipboard {
			text, err := clipboard.ReadAll()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading clipboard: %v\n", err)
				os.Exit(1)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				fmt.Fprintln(os.Stderr, "Error: clipboard is empty")
				os.Exit(1)
			}
			urls = append(urls, text)
		}

		if batchFile != "" {
			fileUrls, err := readURLsFromFile(batchFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading batch file: %v\n", err)
				os.Exit(1)
			}
			urls = append(urls, fileUrls...)
		}

		if len(urls) == 0 {
			cmd.Help()
			return
		}
		if filename != "" && len(urls) > 1 {
			fmt.Fprintln(os.Stderr, "Error: --filename only makes sense with a single URL")
			os.Exit(1)
		}

		port := requireDaemon()

		count := 0
		for _, url := range urls {
			name := filename
			if name == "" && probe {
				name = probeFilename(url)
			}

			var created struct {
				ID string `json:"id"`
			}
			err := apiDo(port, http.MethodPost, "/api/downloads", map[string]string{
				"url": url, "folder": folder, "filename": name,
			}, &created)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error adding %s: %v\n", url, err)
				continue
			}
			fmt.Printf("Added %s (%s)\n", url, shortID(created.ID))
			count++
		}

		if count == 0 {
			os.Exit(1)
		}
	},
}

// probeFilename asks the server for the first bytes of the resource and
// derives a filename from Content-Disposition, URL hints and magic bytes.
// Best effort: any failure falls back to the daemon's own derivation.
func probeFilename(url string) string {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Range", "bytes=0-511")

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}

	sniff, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return utils.RefineFilename(url, resp.Header, sniff)
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	addCmd.Flags().BoolP("clipboard", "c", false, "Read the URL from the system clipboard")
	addCmd.Flags().StringP("folder", "f", "", "Subfolder under the download root")
	addCmd.Flags().StringP("filename", "n", "", "Filename to save as (single URL only)")
	addCmd.Flags().Bool("probe", false, "Probe the URL for a better filename before adding")
}
