package observer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foobartory.ai/internal/observerproto"
	"foobartory.ai/internal/sim/factory"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := factory.DefaultConfig()
	cfg.RunID = "run_obs"
	srv := NewServer(cfg, log.New(io.Discard), Options{})
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return srv, hs
}

func dial(t *testing.T, hs *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(sub))
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func subscribe(every int, events bool) observerproto.SubscribeMsg {
	return observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		EveryTicks:      every,
		Events:          events,
	}
}

func TestWS_WelcomeThenTicks(t *testing.T) {
	srv, hs := newTestServer(t)
	conn := dial(t, hs, subscribe(1, true))

	var welcome observerproto.WelcomeMsg
	readJSON(t, conn, &welcome)
	assert.Equal(t, "WELCOME", welcome.Type)
	assert.Equal(t, "run_obs", welcome.RunID)
	assert.Equal(t, 1, srv.Sessions())

	require.NoError(t, srv.WriteTick(factory.TickLogEntry{
		Tick:   1,
		Report: factory.Report{Tick: 1, Robots: 2},
		Events: []factory.RecordedEvent{{Robot: 0, Type: "ASSIGNED", Action: "mine foo"}},
		Digest: "abc",
	}))

	var tick observerproto.TickMsg
	readJSON(t, conn, &tick)
	assert.Equal(t, "TICK", tick.Type)
	assert.Equal(t, uint64(1), tick.Tick)
	assert.Equal(t, 2, tick.Report.Robots)
	assert.Equal(t, "abc", tick.Digest)
	require.Len(t, tick.Events, 1)
	assert.Equal(t, "mine foo", tick.Events[0].Action)
}

func TestWS_SamplingKeepsFinal(t *testing.T) {
	srv, hs := newTestServer(t)
	conn := dial(t, hs, subscribe(2, false))

	var welcome observerproto.WelcomeMsg
	readJSON(t, conn, &welcome)

	for tick := uint64(1); tick <= 4; tick++ {
		require.NoError(t, srv.WriteTick(factory.TickLogEntry{
			Tick:   tick,
			Events: []factory.RecordedEvent{{Robot: 1, Type: "COMPLETED"}},
		}))
	}
	require.NoError(t, srv.WriteTick(factory.TickLogEntry{Tick: 5, Final: true}))

	var got []uint64
	for i := 0; i < 3; i++ {
		var msg observerproto.TickMsg
		readJSON(t, conn, &msg)
		assert.Empty(t, msg.Events)
		got = append(got, msg.Tick)
		if i == 2 {
			assert.True(t, msg.Final)
		}
	}
	assert.Equal(t, []uint64{2, 4, 5}, got)
}

func TestWS_RejectsBadSubscribe(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs, observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestWS_CloseDisconnects(t *testing.T) {
	srv, hs := newTestServer(t)
	conn := dial(t, hs, subscribe(1, false))
	var welcome observerproto.WelcomeMsg
	readJSON(t, conn, &welcome)

	srv.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, srv.Sessions())
}

func TestBootstrap_ReportsLastTick(t *testing.T) {
	srv, hs := newTestServer(t)
	require.NoError(t, srv.WriteTick(factory.TickLogEntry{Tick: 42, Report: factory.Report{Tick: 42, Money: 3, Robots: 4}}))

	resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var boot observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&boot))
	assert.Equal(t, "run_obs", boot.RunID)
	assert.Equal(t, uint64(42), boot.Tick)
	assert.Equal(t, 3, boot.Report.Money)
	assert.Equal(t, 6, boot.RunParams.TargetRobots)
	assert.False(t, boot.Finished)
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:1234"))
	assert.True(t, isLoopbackRemote("[::1]:80"))
	assert.False(t, isLoopbackRemote("10.0.0.2:80"))
	assert.False(t, isLoopbackRemote("garbage"))
}
