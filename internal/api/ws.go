package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/riptide-dl/riptide/internal/engine"
)

const (
	pushInterval = time.Second
	writeWait    = 2 * time.Second
)

// hub fans the engine snapshot out to websocket subscribers: one message on
// subscribe, then one per second. With no subscribers no snapshots are
// built. A subscriber that cannot take a write within writeWait is dropped.
type hub struct {
	mgr *engine.Manager
	log zerolog.Logger

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}

	quit chan struct{}
	done chan struct{}
}

var upgrader = websocket.Upgrader{
	// the server is loopback-only, so cross-origin checks buy nothing
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newHub(mgr *engine.Manager, log zerolog.Logger) *hub {
	h := &hub{
		mgr:  mgr,
		log:  log,
		subs: make(map[*websocket.Conn]struct{}),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *hub) run() {
	defer close(h.done)
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.broadcast()
		case <-h.quit:
			return
		}
	}
}

func (h *hub) broadcast() {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	payload, err := json.Marshal(h.mgr.StatusMessage())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal status message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.subs {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Err(err).Msg("dropping websocket subscriber")
			conn.Close()
			delete(h.subs, conn)
		}
	}
}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// immediate snapshot so the client renders without waiting a tick
	payload, err := json.Marshal(h.mgr.StatusMessage())
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, payload)
	}
	if err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.subs[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket subscriber connected")

	// inbound messages are ignored; the read pump only notices disconnects
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.mu.Lock()
		if _, ok := h.subs[conn]; ok {
			delete(h.subs, conn)
			conn.Close()
		}
		h.mu.Unlock()
	}()
}

func (h *hub) close() {
	close(h.quit)
	<-h.done

	h.mu.Lock()
	for conn := range h.subs {
		conn.Close()
	}
	h.subs = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}
