package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit [bytes-per-second]",
	Short: "Show or set the global download rate limit",
	Long: `Without an argument, print the current global rate limit. With one,
set it. Values accept size suffixes ("2MB", "500K"); 0 disables the limit.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		port := requireDaemon()
		settingPath := "/api/settings/" + types.SettingRateLimit

		if len(args) == 0 {
			var setting struct {
				Value string `json:"value"`
			}
			if err := apiDo(port, http.MethodGet, settingPath, nil, &setting); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			bps, _ := strconv.ParseInt(setting.Value, 10, 64)
			if bps == 0 {
				fmt.Println("Rate limit: unlimited")
			} else {
				fmt.Printf("Rate limit: %s/s (%d bytes/s)\n", humanize.IBytes(uint64(bps)), bps)
			}
			return
		}

		bps, err := humanize.ParseBytes(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot parse %q as a byte size\n", args[0])
			os.Exit(1)
		}

		body := map[string]string{"value": strconv.FormatUint(bps, 10)}
		if err := apiDo(port, http.MethodPut, settingPath, body, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if bps == 0 {
			fmt.Println("Rate limit disabled.")
		} else {
			fmt.Printf("Rate limit set to %s/s.\n", humanize.IBytes(bps))
		}
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
}
