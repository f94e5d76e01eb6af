package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

const (
	// how long a read may sit without data before the transfer is declared
	// stalled
	idleTimeout = 300 * time.Second

	// journal flush cadence while transferring
	flushInterval = 5 * time.Second

	// poll interval while a worker is parked on pause
	pausePoll = 100 * time.Millisecond
)

// runWorker drives one transfer to a terminal state and records the outcome.
// Cancelled downloads are already gone from the journal, so they get no
// final write; shutdown leaves the row in downloading for the next run to
// re-queue.
func (m *Manager) runWorker(d *download) {
	ctx, cancel := context.WithCancel(context.Background())
	d.setCancelFunc(cancel)
	defer func() {
		d.setCancelFunc(nil)
		cancel()
	}()

	err := m.transfer(ctx, d)

	switch {
	case err == nil:
		d.mu.Lock()
		d.status = types.StatusCompleted
		d.completedAt = time.Now()
		d.speedBPS = 0
		d.etaSeconds = 0
		d.mu.Unlock()
		m.flush(d)
		m.log.Info().Str("id", d.id).Str("filename", d.filename).Msg("download completed")

	case d.cancelled.Load():
		m.log.Debug().Str("id", d.id).Msg("worker exited after cancel")

	case m.closing.Load():
		m.flush(d)

	default:
		msg := err.Error()
		var te *types.Error
		if errors.As(err, &te) {
			msg = te.Message
		}
		d.mu.Lock()
		d.status = types.StatusFailed
		d.errMsg = msg
		d.speedBPS = 0
		d.etaSeconds = 0
		d.mu.Unlock()
		m.flush(d)
		m.log.Warn().Str("id", d.id).Str("kind", string(types.KindOf(err))).Str("error", msg).Msg("download failed")
	}
}

// transfer performs the HTTP byte transfer for d. A nil return means the
// file is complete on disk. Pauses are served in place: the worker parks
// between chunks until resumed or cancelled.
func (m *Manager) transfer(ctx context.Context, d *download) error {
	d.markDownloading()
	d.resetSpeed()
	m.flush(d)

	dir, err := resolveFolder(m.root, d.folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.E(types.ErrIO, "creating %s: %v", dir, err)
	}

	path := filepath.Join(dir, d.filename)

	// resume from whatever partial file is already on disk
	var offset int64
	if fi, statErr := os.Stat(path); statErr == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return types.E(types.ErrValidation, "building request: %v", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.E(types.ErrCancelled, "transfer aborted")
		}
		return types.E(types.ErrTransport, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.E(types.ErrTransport, "server returned HTTP %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		// server sent the whole body; restart from zero
		offset = 0
		flags |= os.O_TRUNC
	}

	d.mu.Lock()
	d.downloaded = offset
	if resp.ContentLength >= 0 {
		d.total = offset + resp.ContentLength
	} else {
		d.total = 0
	}
	total := d.total
	d.mu.Unlock()
	m.flush(d)

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return types.E(types.ErrIO, "opening %s: %v", path, err)
	}
	defer f.Close()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(idleTimeout, func() {
		stalled.Store(true)
		d.abort()
	})
	defer watchdog.Stop()
	body := &idleResetReader{r: resp.Body, timer: watchdog, idle: idleTimeout}

	abortErr := func() error {
		switch {
		case stalled.Load():
			return types.E(types.ErrTransport, "no data received for %s", idleTimeout)
		default:
			return types.E(types.ErrCancelled, "transfer aborted")
		}
	}

	var buf []byte
	lastFlush := time.Now()
	for {
		if d.cancelled.Load() {
			return types.E(types.ErrCancelled, "transfer aborted")
		}
		if d.paused.Load() {
			watchdog.Stop()
			if err := m.parkWhilePaused(ctx, d); err != nil {
				return err
			}
			watchdog.Reset(idleTimeout)
		}

		chunk := m.limiter.ChunkSize()
		if chunk > len(buf) {
			buf = make([]byte, chunk)
		}

		n, readErr := body.Read(buf[:chunk])
		if n > 0 {
			if err := m.limiter.Acquire(ctx, int64(n)); err != nil {
				return abortErr()
			}
			if d.cancelled.Load() {
				return types.E(types.ErrCancelled, "transfer aborted")
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return types.E(types.ErrIO, "writing %s: %v", path, werr)
			}
			d.mu.Lock()
			d.downloaded += int64(n)
			d.mu.Unlock()
			d.sampleSpeed(time.Now())

			if time.Since(lastFlush) >= flushInterval {
				m.flush(d)
				lastFlush = time.Now()
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return abortErr()
			}
			return types.E(types.ErrTransport, "reading response: %v", readErr)
		}
	}

	if total > 0 {
		d.mu.Lock()
		got := d.downloaded
		d.mu.Unlock()
		if got < total {
			return types.E(types.ErrTransport, "connection closed early: got %d of %d bytes", got, total)
		}
	}
	return nil
}

// parkWhilePaused holds the worker between chunks until the pause flag
// clears, then republishes the downloading status.
func (m *Manager) parkWhilePaused(ctx context.Context, d *download) error {
	for d.paused.Load() {
		if d.cancelled.Load() {
			return types.E(types.ErrCancelled, "transfer aborted")
		}
		select {
		case <-time.After(pausePoll):
		case <-ctx.Done():
			return types.E(types.ErrCancelled, "transfer aborted")
		}
	}

	d.markDownloading()
	d.resetSpeed()
	m.flush(d)
	return nil
}

// idleResetReader re-arms the stall watchdog after every read.
type idleResetReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (b *idleResetReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.timer.Reset(b.idle)
	return n, err
}
