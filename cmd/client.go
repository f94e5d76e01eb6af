package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/riptide-dl/riptide/internal/config"
)

// client helpers shared by the subcommands that talk to a running daemon.

var apiClient = &http.Client{Timeout: 10 * time.Second}

// readActivePort reads the daemon's port from the discovery file, 0 when no
// daemon is running.
func readActivePort() int {
	data, err := os.ReadFile(config.PortPath())
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(string(data), "%d", &port)
	return port
}

// requireDaemon resolves the active port or exits with a hint.
func requireDaemon() int {
	port := readActivePort()
	if port == 0 {
		fmt.Fprintln(os.Stderr, "Error: riptide is not running.")
		fmt.Fprintln(os.Stderr, "Start the daemon with 'riptide' first.")
		os.Exit(1)
	}
	return port
}

func apiURL(port int, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
}

// apiDo sends one request to the daemon and decodes the JSON response into
// out (which may be nil). Non-2xx responses surface the server's error
// message.
func apiDo(port int, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, apiURL(port, path), reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// readURLsFromFile reads URLs from a file, one per line, skipping blanks and
// # comments.
func readURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}
