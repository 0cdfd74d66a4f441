package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/foldedspace/arena-server/config"
	"github.com/foldedspace/arena-server/game"
	"github.com/foldedspace/arena-server/telemetry"
)

// Server is the Simulation World's host: it owns the Command Bus, the
// Snapshot Bus, and the fixed-rate tick loop that steps the world and
// publishes snapshots (spec §2 and §4.4). It never touches a socket
// directly; sockets are the Transport Endpoint's job (see websocket.go).
type Server struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *telemetry.Metrics

	commands  *CommandBus
	snapshots *SnapshotBus
	world     *game.World

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer constructs a Server ready to Run.
func NewServer(cfg config.Config, log zerolog.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		commands:  NewCommandBus(),
		snapshots: NewSnapshotBus(),
		world:     game.NewWorld(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Commands exposes the Command Bus so the Transport Endpoint can push Game
// Packets without the Server package knowing anything about connections.
func (s *Server) Commands() *CommandBus {
	return s.commands
}

// Snapshots exposes the Snapshot Bus for subscription by connection writer
// tasks.
func (s *Server) Snapshots() *SnapshotBus {
	return s.snapshots
}

// Run drives the fixed-rate tick loop until Shutdown is called. It never
// awaits I/O and never suspends mid-tick (spec §5): the only yield point is
// the ticker's periodic sleep. Run returns once the current tick finishes
// after a shutdown request (spec §5's cancellation rule).
func (s *Server) Run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.TickPeriod())
	defer ticker.Stop()

	s.log.Info().Dur("period", s.cfg.TickPeriod()).Msg("simulation loop starting")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("simulation loop stopping (context canceled)")
			return
		case <-s.stopCh:
			s.log.Info().Msg("simulation loop stopping (shutdown requested)")
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Server) step() {
	start := time.Now()

	packets := s.commands.TryDrain()
	snap, publish := s.world.Step(packets)

	if s.metrics != nil {
		s.metrics.CommandsApplied.Add(float64(len(packets)))
	}

	if publish {
		payload, err := snap.Encode()
		if err != nil {
			// Spec §4.4/§7: encoding failure drops this snapshot only; the
			// tick still completes.
			s.log.Error().Err(err).Uint64("tick", snap.Tick).Msg("snapshot encode failed, dropping")
		} else {
			s.snapshots.Publish(payload)
			if s.metrics != nil {
				s.metrics.SnapshotsSent.Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// Shutdown requests the tick loop stop after finishing its current tick,
// closes the Snapshot Bus so blocked writer tasks unwind, and waits for Run
// to return.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
	s.snapshots.Close()
}
