package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/diagnostics"
	"github.com/coreman2200/rivesched/internal/events"
)

type recorder struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (r *recorder) Apply(c command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Attr == "explode" {
		return errors.New("unknown attribute")
	}
	r.cmds = append(r.cmds, c)
	return nil
}

func serve(t *testing.T) (*Hub, *events.Bus, *recorder, string) {
	t.Helper()
	bus := events.NewBus()
	rec := &recorder{}
	h := NewHub(bus, rec, WithHealth(func() map[string]any { return map[string]any{"scene": "demo"} }))
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, bus, rec, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) events.Event {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, events.JSON.Unmarshal(data, &e))
	return e
}

func TestEventsSkipDiagnostics(t *testing.T) {
	_, bus, _, url := serve(t)
	ev := dial(t, url+"/events")
	dg := dial(t, url+"/diag")

	bus.Publish(events.Diagnosed("machine:ui", diagnostics.InputUnresolved("machine:ui", "click")))
	bus.Publish(events.Loaded("player:hero", "idle"))

	e := read(t, ev)
	assert.Equal(t, events.Load, e.Kind)
	assert.Equal(t, "player:hero", e.Source)
	assert.Equal(t, "idle", e.Name)

	d := read(t, dg)
	assert.Equal(t, events.Diagnostic, d.Kind)
	require.NotNil(t, d.Diag)
	assert.Equal(t, diagnostics.CodeInput, d.Diag.Code)
}

func TestEventsKindFilter(t *testing.T) {
	_, bus, _, url := serve(t)
	c := dial(t, url+"/events?kind=stateChange")

	bus.Publish(events.Loaded("player:hero", "idle"))
	bus.Publish(events.StatesChanged("machine:ui", []string{"hover"}))

	e := read(t, c)
	assert.Equal(t, events.StateChange, e.Kind)
	assert.Equal(t, []string{"hover"}, e.States)
}

func TestControl(t *testing.T) {
	_, _, rec, url := serve(t)
	c := dial(t, url+"/control")

	reply := func(msg string) command.Reply {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(msg)))
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var r command.Reply
		require.NoError(t, json.Unmarshal(data, &r))
		return r
	}

	assert.Equal(t, command.Reply{OK: true}, reply(`{"target":"player:hero","attr":"speed","value":2}`))
	assert.False(t, reply(`{"target":"hero","attr":"speed"}`).OK)
	assert.Equal(t, "unknown attribute", reply(`{"target":"player:hero","attr":"explode"}`).Error)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.cmds, 1)
	assert.Equal(t, json.Number("2"), rec.cmds[0].Value)
}

func TestHealth(t *testing.T) {
	h, bus, _, _ := serve(t)
	bus.Publish(events.Loaded("player:hero", "idle"))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["published"])
	assert.Equal(t, "demo", resp["scene"])
	assert.Contains(t, resp, "uptime_s")
}
