package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riptide-dl/riptide/internal/api"
	"github.com/riptide-dl/riptide/internal/config"
	"github.com/riptide-dl/riptide/internal/engine"
	"github.com/riptide-dl/riptide/internal/engine/state"
	"github.com/riptide-dl/riptide/internal/logging"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd runs the daemon. Every other subcommand is an HTTP client of it.
var rootCmd = &cobra.Command{
	Use:     "riptide",
	Short:   "A queueing HTTP download manager",
	Long:    `Riptide is a download manager daemon: queued transfers, resume across restarts, a global rate limit, and a loopback API driven by the riptide client commands.`,
	Version: Version,
	RunE:    runDaemon,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: first available)")
	rootCmd.Flags().StringP("root", "r", "", "Download root directory (default: ~/Downloads/riptide)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.SetVersionTemplate("riptide version {{.Version}}\n")
	rootCmd.SilenceUsage = true
}

func runDaemon(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	log := logging.New(verbose)

	if err := config.EnsureDirs(); err != nil {
		return err
	}

	isMaster, err := AcquireLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !isMaster {
		fmt.Fprintln(os.Stderr, "Error: riptide is already running.")
		fmt.Fprintln(os.Stderr, "Use 'riptide add <url>' to talk to the active daemon.")
		os.Exit(1)
	}
	defer ReleaseLock()

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		root = config.DefaultDownloadRoot()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create download root: %w", err)
	}

	store, err := state.Open(config.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	mgr, err := engine.New(store, root, log)
	if err != nil {
		return err
	}

	srv := api.NewServer(mgr, log)
	portFlag, _ := cmd.Flags().GetInt("port")
	port, err := srv.Listen(portFlag)
	if err != nil {
		return err
	}
	saveActivePort(port)
	defer removeActivePort()

	log.Info().Int("port", port).Str("root", root).Msg("riptide daemon ready")

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("API shutdown incomplete")
	}
	mgr.Shutdown(ctx)
	return nil
}

// saveActivePort writes the listen port to ~/.riptide/port for client discovery.
func saveActivePort(port int) {
	os.WriteFile(config.PortPath(), []byte(fmt.Sprintf("%d", port)), 0644)
}

// removeActivePort cleans up the port file on exit.
func removeActivePort() {
	os.Remove(config.PortPath())
}

// shortID truncates a uuid for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
