// Package types holds the download model shared between the engine, the
// persistence layer and the API surface.
package types

import "time"

// Status is the lifecycle state of a download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether a download in this status can never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Row is a download as persisted in the journal.
type Row struct {
	ID          string
	URL         string
	Filename    string
	Folder      string
	Status      Status
	Downloaded  int64
	Total       int64
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time // zero when not completed
}

// Progress is the derived progress block of a snapshot view.
type Progress struct {
	Downloaded int64   `json:"downloaded_bytes"`
	Total      int64   `json:"total_bytes"`
	Percentage float64 `json:"percentage"`
	SpeedBPS   int64   `json:"speed_bps"`
	ETASeconds int64   `json:"eta_seconds"`
}

// DownloadView is one element of the snapshot array handed to observers.
type DownloadView struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Filename string   `json:"filename"`
	Folder   string   `json:"folder"`
	Status   Status   `json:"status"`
	Error    string   `json:"error_message,omitempty"`
	Progress Progress `json:"progress"`
}

// StatusMsg is the payload pushed to stream subscribers.
type StatusMsg struct {
	Type      string         `json:"type"`
	Downloads []DownloadView `json:"downloads"`
}

// Recognized settings keys.
const (
	SettingRateLimit     = "global_rate_limit_bps"
	SettingMaxConcurrent = "max_concurrent_downloads"
)

// Defaults seeded into the settings table on first run.
const (
	DefaultMaxConcurrent = 3
	DefaultRateLimit     = 0 // unlimited
)
