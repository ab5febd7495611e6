// Package ws serves binding events, diagnostics and a control socket over
// websockets, plus a JSON health endpoint.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/events"
)

const writeWait = 200 * time.Millisecond

type Hub struct {
	log      zerolog.Logger
	bus      *events.Bus
	ctl      command.Applier
	health   func() map[string]any
	upgrader websocket.Upgrader
	started  time.Time

	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

type Option func(*Hub)

func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

// WithHealth adds fields to the /health response.
func WithHealth(fn func() map[string]any) Option { return func(h *Hub) { h.health = fn } }

func NewHub(bus *events.Bus, ctl command.Applier, opts ...Option) *Hub {
	h := &Hub{
		log:      log.Logger.With().Str("component", "ws").Logger(),
		bus:      bus,
		ctl:      ctl,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		started:  time.Now(),
		clients:  map[*websocket.Conn]string{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/events", h.HandleEvents)
	mux.HandleFunc("/diag", h.HandleDiag)
	mux.HandleFunc("/control", h.HandleControl)
	mux.HandleFunc("/health", h.HandleHealth)
}

// HandleEvents streams every non diagnostic event. Repeated ?kind= values
// narrow the stream further.
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	filter := events.Except(events.Diagnostic)
	if kinds := r.URL.Query()["kind"]; len(kinds) > 0 {
		ks := make([]events.Kind, len(kinds))
		for i, k := range kinds {
			ks[i] = events.Kind(k)
		}
		filter = events.Only(ks...)
	}
	h.stream(w, r, "events", filter)
}

func (h *Hub) HandleDiag(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "diag", events.Only(events.Diagnostic))
}

// stream subscribes before the upgrade so nothing published after the
// handshake is missed.
func (h *Hub) stream(w http.ResponseWriter, r *http.Request, name string, filter func(events.Event) bool) {
	sub := h.bus.Subscribe("ws:"+name+":"+r.RemoteAddr, events.DefaultBuffer, filter)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.log.Debug().Err(err).Msg("upgrade")
		return
	}
	h.track(conn, name)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() {
			sub.Close()
			h.untrack(conn)
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case e, ok := <-sub.C():
				if !ok {
					return
				}
				b, err := json.Marshal(e)
				if err != nil {
					h.log.Warn().Err(err).Stringer("event", e).Msg("encode event")
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					h.log.Debug().Err(err).Msg("write event")
					return
				}
			}
		}
	}()
}

// HandleControl applies one JSON command per message and answers each
// with a command.Reply.
func (h *Hub) HandleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade")
		return
	}
	h.track(conn, "control")
	defer func() {
		h.untrack(conn)
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c, err := command.Decode(data)
		if err == nil {
			err = h.ctl.Apply(c)
		}
		if err != nil {
			h.log.Warn().Err(err).Bytes("command", data).Msg("control")
		} else {
			h.log.Debug().Stringer("command", c).Msg("control")
		}
		b, _ := json.Marshal(command.ReplyTo(err))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.bus.Stats()
	resp := map[string]any{
		"uptime_s":  time.Since(h.started).Seconds(),
		"clients":   h.Clients(),
		"published": st.Published,
		"dropped":   st.Dropped,
	}
	if h.health != nil {
		for k, v := range h.health() {
			resp[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Clients counts open sockets by endpoint.
func (h *Hub) Clients() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]int{}
	for _, name := range h.clients {
		out[name]++
	}
	return out
}

func (h *Hub) track(c *websocket.Conn, name string) {
	h.mu.Lock()
	h.clients[c] = name
	h.mu.Unlock()
}

func (h *Hub) untrack(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}
