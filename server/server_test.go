package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/foldedspace/arena-server/config"
	"github.com/foldedspace/arena-server/telemetry"
)

// testHarness wires a Server and Endpoint behind an httptest server, matching
// how main.go assembles the two, but at a tick rate fast enough for tests to
// observe several ticks without sleeping long.
type testHarness struct {
	t      *testing.T
	srv    *Server
	http   *httptest.Server
	cancel context.CancelFunc
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := config.Config{
		TickRate:         200,
		CommandRateLimit: 1000,
		CommandBurst:     1000,
		ShutdownGrace:    time.Second,
	}
	log := zerolog.Nop()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	gameServer := NewServer(cfg, log, metrics)
	endpoint := NewEndpoint(cfg, log, gameServer, metrics, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go gameServer.Run(ctx)

	ts := httptest.NewServer(endpoint)

	h := &testHarness{t: t, srv: gameServer, http: ts, cancel: cancel}
	t.Cleanup(func() {
		h.http.Close()
		h.cancel()
		h.srv.Shutdown()
	})
	return h
}

func (h *testHarness) dial() *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode snapshot: %v (payload: %s)", err, data)
	}
	return envelope
}

// TestSoloJoinEventuallyReportsOnePlayer covers scenario 1 from spec §8: a
// solo connection sees itself in every published snapshot once the simulation
// picks up its Join.
func TestSoloJoinEventuallyReportsOnePlayer(t *testing.T) {
	h := newTestHarness(t)
	conn := h.dial()
	defer conn.Close()

	envelope := readSnapshot(t, conn)
	snap, ok := envelope["Snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("envelope missing Snapshot key: %v", envelope)
	}
	players, _ := snap["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("players = %v, want 1 entry", players)
	}
}

// TestTwoPlayersWalkTogetherOverTheWire covers scenario 2 from spec §8 at
// the transport level.
func TestTwoPlayersWalkTogetherOverTheWire(t *testing.T) {
	h := newTestHarness(t)
	connA := h.dial()
	defer connA.Close()
	connB := h.dial()
	defer connB.Close()

	readSnapshot(t, connA) // discard the initial solo snapshot

	move := []byte(`{"Move":{"dir":[1,0]}}`)
	for i := 0; i < 10; i++ {
		if err := connA.WriteMessage(websocket.TextMessage, move); err != nil {
			t.Fatalf("write A: %v", err)
		}
		if err := connB.WriteMessage(websocket.TextMessage, move); err != nil {
			t.Fatalf("write B: %v", err)
		}
	}

	// Drain until we see both players reporting the same, advanced X.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		envelope := readSnapshot(t, connA)
		snap := envelope["Snapshot"].(map[string]any)
		players, _ := snap["players"].([]any)
		if len(players) != 2 {
			continue
		}
		p0 := players[0].(map[string]any)
		p1 := players[1].(map[string]any)
		pos0 := p0["position"].([]any)
		pos1 := p1["position"].([]any)
		if pos0[0].(float64) > 400 && pos1[0].(float64) > 400 {
			return
		}
	}
	t.Fatal("never observed both players advance past spawn")
}

// TestCastSpellLandsHitOverTheWire covers scenario 3 from spec §8 at the
// transport level: a cast frame eventually produces a damaged victim.
func TestCastSpellLandsHitOverTheWire(t *testing.T) {
	h := newTestHarness(t)
	caster := h.dial()
	defer caster.Close()
	victim := h.dial()
	defer victim.Close()

	readSnapshot(t, caster)

	cast := []byte(`{"CastSpell":{"target":[500,300]}}`)
	if err := caster.WriteMessage(websocket.TextMessage, cast); err != nil {
		t.Fatalf("write cast: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		envelope := readSnapshot(t, caster)
		snap := envelope["Snapshot"].(map[string]any)
		players, _ := snap["players"].([]any)
		for _, raw := range players {
			p := raw.(map[string]any)
			if p["health"].(float64) < 100 {
				return
			}
		}
	}
	t.Fatal("victim never took damage from cast")
}

// TestGracefulShutdownClosesConnections covers scenario 7 from spec §8:
// Server.Shutdown eventually closes every live connection's write side.
func TestGracefulShutdownClosesConnections(t *testing.T) {
	cfg := config.Config{
		TickRate:         200,
		CommandRateLimit: 1000,
		CommandBurst:     1000,
		ShutdownGrace:    time.Second,
	}
	log := zerolog.Nop()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	gameServer := NewServer(cfg, log, metrics)
	endpoint := NewEndpoint(cfg, log, gameServer, metrics, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go gameServer.Run(ctx)

	ts := httptest.NewServer(endpoint)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readSnapshot(t, conn)

	gameServer.Shutdown()
	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection closed, as expected
		}
	}
}
