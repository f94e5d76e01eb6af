package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

// download is the in-memory twin of one journal row plus the control fields
// its worker needs. The manager goroutine owns the registry mapping; the
// worker is the sole writer of the progress fields while active. Every field
// behind mu is read by snapshots under the same lock (copy-out).
type download struct {
	id        string
	url       string
	folder    string
	filename  string
	createdAt time.Time

	mu          sync.Mutex
	status      types.Status
	downloaded  int64
	total       int64
	errMsg      string
	completedAt time.Time
	speedBPS    float64
	etaSeconds  int64

	// speed sampling, touched only by the worker
	lastSampleTime  time.Time
	lastSampleBytes int64

	paused    atomic.Bool
	cancelled atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc // non-nil while a worker is in flight
}

func (d *download) setStatus(s types.Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// markDownloading publishes the downloading status unless the pause flag is
// set. The manager stores the flag before writing the paused status, so
// checking it under the same lock keeps a racing pause's status intact.
func (d *download) markDownloading() {
	d.mu.Lock()
	if d.paused.Load() {
		d.status = types.StatusPaused
	} else {
		d.status = types.StatusDownloading
	}
	d.mu.Unlock()
}

func (d *download) getStatus() types.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// resetSpeed zeroes the derived rate fields and the sampling baseline.
func (d *download) resetSpeed() {
	d.mu.Lock()
	d.speedBPS = 0
	d.etaSeconds = 0
	d.lastSampleTime = time.Time{}
	d.mu.Unlock()
}

// sampleSpeed recomputes speed and ETA once at least a second has passed
// since the previous sample.
func (d *download) sampleSpeed(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastSampleTime.IsZero() {
		d.lastSampleTime = now
		d.lastSampleBytes = d.downloaded
		return
	}

	dt := now.Sub(d.lastSampleTime).Seconds()
	if dt < 1.0 {
		return
	}

	d.speedBPS = float64(d.downloaded-d.lastSampleBytes) / dt
	if d.speedBPS > 0 && d.total > 0 {
		d.etaSeconds = int64(float64(d.total-d.downloaded) / d.speedBPS)
	} else {
		d.etaSeconds = 0
	}
	d.lastSampleTime = now
	d.lastSampleBytes = d.downloaded
}

func (d *download) setCancelFunc(fn context.CancelFunc) {
	d.cancelMu.Lock()
	d.cancel = fn
	d.cancelMu.Unlock()
}

// abort cancels the in-flight worker's context, if any.
func (d *download) abort() {
	d.cancelMu.Lock()
	fn := d.cancel
	d.cancelMu.Unlock()
	if fn != nil {
		fn()
	}
}

// view copies out a consistent snapshot of the download.
func (d *download) view() types.DownloadView {
	d.mu.Lock()
	defer d.mu.Unlock()

	var pct float64
	if d.total > 0 {
		pct = float64(d.downloaded) / float64(d.total) * 100
		// two decimal places, matching the wire format
		pct = float64(int64(pct*100+0.5)) / 100
	}

	return types.DownloadView{
		ID:       d.id,
		URL:      d.url,
		Filename: d.filename,
		Folder:   d.folder,
		Status:   d.status,
		Error:    d.errMsg,
		Progress: types.Progress{
			Downloaded: d.downloaded,
			Total:      d.total,
			Percentage: pct,
			SpeedBPS:   int64(d.speedBPS),
			ETASeconds: d.etaSeconds,
		},
	}
}
