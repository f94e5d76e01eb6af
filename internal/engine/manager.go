// Package engine runs the download lifecycle: a single manager goroutine owns
// the registry and admits queued downloads up to the concurrency cap, and one
// worker goroutine per active download performs the transfer.
package engine

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riptide-dl/riptide/internal/engine/limiter"
	"github.com/riptide-dl/riptide/internal/engine/state"
	"github.com/riptide-dl/riptide/internal/engine/types"
	"github.com/riptide-dl/riptide/internal/utils"
)

// Manager schedules downloads. All registry mutation happens on the run loop
// goroutine; exported methods hand it closures and wait for the result, so
// they are safe to call from any goroutine.
type Manager struct {
	store   *state.Store
	limiter *limiter.Limiter
	log     zerolog.Logger
	root    string
	client  *http.Client

	cmds chan func()
	quit chan struct{}
	done chan struct{}

	closing atomic.Bool

	// owned by the run loop
	registry      map[string]*download
	running       map[string]struct{}
	globalPaused  bool
	maxConcurrent int

	wg sync.WaitGroup
}

// New builds a manager over an open journal, reloads every non-terminal row
// and starts the admission loop. Rows left in downloading by a previous run
// are demoted to queued so they are re-admitted rather than orphaned.
func New(store *state.Store, root string, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		store:         store,
		limiter:       limiter.New(store.GetIntSetting(types.SettingRateLimit, types.DefaultRateLimit)),
		log:           log,
		root:          root,
		client:        newHTTPClient(),
		cmds:          make(chan func()),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		registry:      make(map[string]*download),
		running:       make(map[string]struct{}),
		maxConcurrent: int(store.GetIntSetting(types.SettingMaxConcurrent, types.DefaultMaxConcurrent)),
	}
	if m.maxConcurrent < 1 {
		m.maxConcurrent = types.DefaultMaxConcurrent
	}

	rows, err := store.ListNonterminal()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		d := &download{
			id:         row.ID,
			url:        row.URL,
			folder:     row.Folder,
			filename:   row.Filename,
			createdAt:  row.CreatedAt,
			status:     row.Status,
			downloaded: row.Downloaded,
			total:      row.Total,
		}
		if d.status == types.StatusDownloading {
			d.status = types.StatusQueued
			m.flush(d)
		}
		if d.status == types.StatusPaused {
			d.paused.Store(true)
		}
		m.registry[d.id] = d
	}
	if len(rows) > 0 {
		log.Info().Int("count", len(rows)).Msg("reloaded unfinished downloads")
	}

	go m.run()
	return m, nil
}

func (m *Manager) run() {
	defer close(m.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-ticker.C:
			m.admit()
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish. It reports
// false when the manager has shut down before fn was confirmed to run.
func (m *Manager) do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(ran) }:
	case <-m.done:
		return false
	}
	select {
	case <-ran:
		return true
	case <-m.done:
		return false
	}
}

// admit starts queued downloads oldest-first until the concurrency cap is
// reached. Runs on the loop goroutine.
func (m *Manager) admit() {
	if m.closing.Load() || m.globalPaused {
		return
	}
	free := m.maxConcurrent - len(m.running)
	if free <= 0 {
		return
	}

	var queued []*download
	for _, d := range m.registry {
		if _, busy := m.running[d.id]; busy {
			continue
		}
		if d.getStatus() == types.StatusQueued {
			queued = append(queued, d)
		}
	}
	sort.Slice(queued, func(i, j int) bool {
		if !queued[i].createdAt.Equal(queued[j].createdAt) {
			return queued[i].createdAt.Before(queued[j].createdAt)
		}
		return queued[i].id < queued[j].id
	})

	for _, d := range queued {
		if free == 0 {
			break
		}
		m.startWorker(d)
		free--
	}
}

// startWorker claims a slot and launches the transfer goroutine. Runs on the
// loop goroutine. The slot is held until the worker exits, including while it
// is parked waiting out a pause.
func (m *Manager) startWorker(d *download) {
	m.running[d.id] = struct{}{}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runWorker(d)
		m.do(func() {
			delete(m.running, d.id)
			m.admit()
		})
	}()
}

// Add validates and registers a new download. It returns the assigned id.
// When the manager is globally paused the download is created paused and
// waits for resume-all.
func (m *Manager) Add(rawurl, folder, filename string) (string, error) {
	rawurl = strings.TrimSpace(rawurl)
	if rawurl == "" {
		return "", types.E(types.ErrValidation, "url is required")
	}
	u, err := url.Parse(rawurl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", types.E(types.ErrValidation, "url must be absolute http or https")
	}
	if _, err := resolveFolder(m.root, folder); err != nil {
		return "", err
	}
	if filename == "" {
		filename = utils.FilenameFromURL(rawurl)
	} else {
		filename = utils.SanitizeFilename(filename)
		if filename == "" || filename == "." {
			return "", types.E(types.ErrValidation, "filename is not usable")
		}
	}

	var id string
	var cmdErr error
	m.do(func() {
		d := &download{
			id:        uuid.NewString(),
			url:       rawurl,
			folder:    folder,
			filename:  filename,
			createdAt: time.Now(),
			status:    types.StatusQueued,
		}
		if m.globalPaused {
			d.status = types.StatusPaused
			d.paused.Store(true)
		}

		if err := m.store.Insert(types.Row{
			ID:        d.id,
			URL:       d.url,
			Filename:  d.filename,
			Folder:    d.folder,
			Status:    d.status,
			CreatedAt: d.createdAt,
		}); err != nil {
			cmdErr = types.E(types.ErrIO, "recording download: %v", err)
			return
		}

		m.registry[d.id] = d
		id = d.id
		m.log.Info().Str("id", d.id).Str("url", d.url).Msg("download added")
		m.admit()
	})
	return id, cmdErr
}

// Pause suspends one queued or downloading item. An active worker parks at
// the next chunk boundary but keeps its concurrency slot.
func (m *Manager) Pause(id string) error {
	var cmdErr error
	m.do(func() {
		d, ok := m.registry[id]
		if !ok {
			cmdErr = types.E(types.ErrNotFound, "no download with id %s", id)
			return
		}
		st := d.getStatus()
		if st != types.StatusQueued && st != types.StatusDownloading {
			cmdErr = types.E(types.ErrInvalidState, "cannot pause a %s download", st)
			return
		}
		d.paused.Store(true)
		d.setStatus(types.StatusPaused)
		d.resetSpeed()
		m.flush(d)
		m.log.Info().Str("id", id).Msg("download paused")
	})
	return cmdErr
}

// Resume restarts one paused item immediately, even while the manager is
// globally paused. A parked worker picks the transfer back up in place;
// otherwise a fresh worker starts without waiting for the admission tick.
func (m *Manager) Resume(id string) error {
	var cmdErr error
	m.do(func() {
		d, ok := m.registry[id]
		if !ok {
			cmdErr = types.E(types.ErrNotFound, "no download with id %s", id)
			return
		}
		if d.getStatus() != types.StatusPaused {
			cmdErr = types.E(types.ErrInvalidState, "cannot resume a %s download", d.getStatus())
			return
		}

		d.paused.Store(false)
		if _, busy := m.running[id]; busy {
			// the worker may be blocked in a read rather than parked, so
			// republish the status here rather than waiting for it
			d.setStatus(types.StatusDownloading)
			m.flush(d)
		} else {
			d.setStatus(types.StatusQueued)
			m.startWorker(d)
		}
		m.log.Info().Str("id", id).Msg("download resumed")
	})
	return cmdErr
}

// Cancel removes a download in any state. With deleteFile nil the partial
// file is removed unless the download had completed; a non-nil deleteFile
// overrides that default either way.
func (m *Manager) Cancel(id string, deleteFile *bool) error {
	var cmdErr error
	m.do(func() {
		d, ok := m.registry[id]
		if !ok {
			cmdErr = types.E(types.ErrNotFound, "no download with id %s", id)
			return
		}

		prior := d.getStatus()
		d.cancelled.Store(true)
		d.abort()
		if !prior.Terminal() {
			d.setStatus(types.StatusCancelled)
		}
		delete(m.registry, id)

		if err := m.store.Delete(id); err != nil {
			m.log.Error().Err(err).Str("id", id).Msg("failed to delete journal row")
		}

		removeFile := prior != types.StatusCompleted
		if deleteFile != nil {
			removeFile = *deleteFile
		}
		if removeFile {
			path := filepath.Join(m.root, d.folder, d.filename)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
			}
		}
		m.log.Info().Str("id", id).Bool("file_removed", removeFile).Msg("download cancelled")
	})
	return cmdErr
}

// PauseAll pauses every queued and downloading item and stops admission until
// ResumeAll. Already-paused and terminal items are untouched.
func (m *Manager) PauseAll() {
	m.do(func() {
		m.globalPaused = true
		for _, d := range m.registry {
			st := d.getStatus()
			if st == types.StatusQueued || st == types.StatusDownloading {
				d.paused.Store(true)
				d.setStatus(types.StatusPaused)
				d.resetSpeed()
				m.flush(d)
			}
		}
		m.log.Info().Msg("all downloads paused")
	})
}

// ResumeAll lifts the global pause and returns every paused item to the
// queue. Parked workers continue in place; the rest wait for admission.
func (m *Manager) ResumeAll() {
	m.do(func() {
		m.globalPaused = false
		for _, d := range m.registry {
			if d.getStatus() != types.StatusPaused {
				continue
			}
			d.paused.Store(false)
			if _, busy := m.running[d.id]; busy {
				d.setStatus(types.StatusDownloading)
			} else {
				d.setStatus(types.StatusQueued)
			}
			m.flush(d)
		}
		m.admit()
		m.log.Info().Msg("all downloads resumed")
	})
}

// RateLimit returns the current global cap in bytes per second, 0 meaning
// unlimited.
func (m *Manager) RateLimit() int64 {
	return m.limiter.Limit()
}

// SetRateLimit changes the global cap, effective for the next chunk of every
// active transfer, and persists it.
func (m *Manager) SetRateLimit(bps int64) error {
	if bps < 0 {
		return types.E(types.ErrValidation, "rate limit must be >= 0")
	}
	m.limiter.SetLimit(bps)
	if err := m.store.SetSetting(types.SettingRateLimit, strconv.FormatInt(bps, 10)); err != nil {
		return types.E(types.ErrIO, "persisting rate limit: %v", err)
	}
	m.log.Info().Int64("bps", bps).Msg("rate limit updated")
	return nil
}

// Setting reads one recognized settings key.
func (m *Manager) Setting(key string) (string, error) {
	switch key {
	case types.SettingRateLimit:
		return strconv.FormatInt(m.limiter.Limit(), 10), nil
	case types.SettingMaxConcurrent:
		var n int
		if !m.do(func() { n = m.maxConcurrent }) {
			return "", types.E(types.ErrInvalidState, "manager is shut down")
		}
		return strconv.Itoa(n), nil
	default:
		return "", types.E(types.ErrNotFound, "unknown setting %s", key)
	}
}

// SetSetting validates and applies one recognized settings key, then
// persists it.
func (m *Manager) SetSetting(key, value string) error {
	switch key {
	case types.SettingRateLimit:
		bps, err := strconv.ParseInt(value, 10, 64)
		if err != nil || bps < 0 {
			return types.E(types.ErrValidation, "%s must be a non-negative integer", key)
		}
		return m.SetRateLimit(bps)
	case types.SettingMaxConcurrent:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return types.E(types.ErrValidation, "%s must be a positive integer", key)
		}
		m.do(func() {
			m.maxConcurrent = n
			m.admit()
		})
		if err := m.store.SetSetting(key, value); err != nil {
			return types.E(types.ErrIO, "persisting setting: %v", err)
		}
		return nil
	default:
		return types.E(types.ErrValidation, "unknown setting %s", key)
	}
}

// Shutdown aborts active workers, waits for them to flush, and stops the
// loop. Interrupted rows keep their downloading status so the next run
// re-queues them.
func (m *Manager) Shutdown(ctx context.Context) {
	if !m.closing.CompareAndSwap(false, true) {
		<-m.done
		return
	}
	m.do(func() {
		for id := range m.running {
			m.registry[id].abort()
		}
	})

	workersDone := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-ctx.Done():
		m.log.Warn().Msg("shutdown timed out waiting for workers")
	}

	close(m.quit)
	<-m.done
}

// flush writes the progress-bearing fields of d to the journal. Safe to call
// from any goroutine.
func (m *Manager) flush(d *download) {
	d.mu.Lock()
	downloaded, total := d.downloaded, d.total
	status, errMsg, completedAt := d.status, d.errMsg, d.completedAt
	d.mu.Unlock()

	if err := m.store.UpdateProgress(d.id, downloaded, total, status, errMsg, completedAt); err != nil {
		m.log.Error().Err(err).Str("id", d.id).Msg("failed to flush progress")
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  true,
		},
		// no total timeout: large transfers run for hours, the per-read
		// watchdog in the worker handles stalls
	}
}
