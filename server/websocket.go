package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/foldedspace/arena-server/config"
	"github.com/foldedspace/arena-server/game"
	"github.com/foldedspace/arena-server/telemetry"
)

// errConnDone is returned by both the reader and writer goroutines whenever
// they exit, for any reason, so the errgroup.WithContext context always
// cancels — including on a clean close, which a plain non-nil-error-only
// errgroup would miss.
var errConnDone = errors.New("connection task finished")

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true }, // permissive CORS (spec §6)
	EnableCompression: true,
}

// Endpoint is the Transport Endpoint (spec §4.1): it terminates WebSocket
// connections and marshals framed JSON between the wire and the Server's two
// buses. Endpoint holds no game state of its own.
type Endpoint struct {
	cfg     config.Config
	log     zerolog.Logger
	server  *Server
	metrics *telemetry.Metrics
	onJoin  func()
	onLeave func()
}

// NewEndpoint builds a Transport Endpoint that feeds the given Server.
// metrics may be nil (tests that don't care about telemetry). onJoin/onLeave,
// if non-nil, are called exactly once per connection for telemetry
// bookkeeping (e.g. an active-connections gauge); they may be nil.
func NewEndpoint(cfg config.Config, log zerolog.Logger, srv *Server, metrics *telemetry.Metrics, onJoin, onLeave func()) *Endpoint {
	return &Endpoint{cfg: cfg, log: log, server: srv, metrics: metrics, onJoin: onJoin, onLeave: onLeave}
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// full lifecycle: Join, reader/writer tasks, Leave (spec §4.1).
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := rand.Uint32()
	log := e.log.With().Uint32("conn_id", connID).Logger()

	// Step 3 (spec §4.1): enqueue Join. CommandBus.Push cannot fail, so
	// there is no failure path to handle here.
	e.server.Commands().Push(game.JoinPacket(connID))
	if e.onJoin != nil {
		e.onJoin()
	}
	log.Info().Msg("client joined")

	sub := e.server.Snapshots().Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	// Force the blocked reader or writer to unwind once either side is done
	// or the handler's own context is canceled; websocket I/O doesn't
	// respect context directly.
	go func() {
		<-gctx.Done()
		conn.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(e.cfg.CommandRateLimit), e.cfg.CommandBurst)

	group.Go(func() error {
		e.readLoop(conn, connID, limiter, log)
		return errConnDone
	})
	group.Go(func() error {
		e.writeLoop(gctx, conn, sub, log)
		return errConnDone
	})
	_ = group.Wait()

	// Step 7 (spec §4.1): exactly one Leave per Join, on every exit path.
	e.server.Commands().Push(game.LeavePacket(connID))
	if e.onLeave != nil {
		e.onLeave()
	}
	log.Info().Msg("client left")
}

// readLoop decodes inbound text frames as ClientCommands and enqueues them.
// Decode failures are silently dropped (spec §4.1 step 5); binary/control
// frames are ignored by ReadMessage's TextMessage check.
func (e *Endpoint) readLoop(conn *websocket.Conn, connID uint32, limiter *rate.Limiter, log zerolog.Logger) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		cmd, err := game.ParseClientCommand(data)
		if err != nil {
			log.Debug().Err(err).Msg("dropping undecodable client frame")
			continue
		}

		if !limiter.Allow() {
			log.Debug().Msg("dropping command: per-connection rate limit exceeded")
			if e.metrics != nil {
				e.metrics.CommandsDropped.Inc()
			}
			continue
		}

		e.server.Commands().Push(game.CommandPacket(connID, cmd))
	}
}

// writeLoop forwards every snapshot delivered by sub as a text frame until
// the send fails, ctx is canceled (the reader exited), or the subscription
// ends (spec §4.1 step 5).
func (e *Endpoint) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, log zerolog.Logger) {
	for {
		payload, lagged, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if lagged {
			log.Debug().Msg("subscriber lagged, skipped to current snapshot")
			if e.metrics != nil {
				e.metrics.SubscriberLags.Inc()
			}
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
	}
}
