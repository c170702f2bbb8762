package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"peersync/internal/lib/logger/sl"
	"peersync/internal/protocol"
)

const limiterIdle = time.Minute

// Config holds the control-loop settings.
type Config struct {
	Listen           string
	BufferSize       int
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	RateLimit        float64
	RateBurst        int
}

// Server runs the coordinator's UDP control loop: receive one datagram,
// sweep expired sessions, dispatch, reply.
type Server struct {
	log     *slog.Logger
	cfg     Config
	engine  *Engine
	monitor *Monitor
	limiter *addrLimiter
}

func NewServer(engine *Engine, cfg Config, log *slog.Logger) *Server {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = protocol.DefaultBufferSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}

	return &Server{
		log:     log.With(slog.String("component", "server")),
		cfg:     cfg,
		engine:  engine,
		monitor: NewMonitor(engine, cfg.HeartbeatTimeout, cfg.SweepInterval, log),
		limiter: newAddrLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

// ListenAndServe binds the configured address and serves until ctx is done.
// A bind failure is returned before the loop starts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, conn)
}

// Serve processes datagrams from conn until ctx is done. conn is closed on return.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	const op = "coordinator.Serve"
	log := s.log.With(slog.String("op", op))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
	}()

	wg.Add(3)
	go func() {
		defer wg.Done()
		s.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.pruneLimiter(ctx)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		conn.Close()
	}()

	log.Info("Coordinator listening", slog.String("addr", conn.LocalAddr().String()))

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		// some bytes may arrive together with an error; handle them anyway
		if n > 0 && addr != nil {
			s.handlePacket(conn, addr, buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Coordinator stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%s: %w", op, err)
			}
			log.Warn("Reading error occurred on packet", sl.Err(err))
		}
	}
}

func (s *Server) handlePacket(conn net.PacketConn, addr net.Addr, payload []byte) {
	key := addr.String()

	if !s.limiter.Allow(key, time.Now()) {
		s.log.Debug("rate limit exceeded, dropping datagram", slog.String("addr", key))
		return
	}

	s.monitor.Sweep()

	r := s.engine.Handle(key, payload)
	if !r.Send {
		return
	}

	if _, err := conn.WriteTo([]byte(r.Text), addr); err != nil {
		s.log.Warn("Failed to send reply", slog.String("addr", key), sl.Err(err))
	}
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.limiter.Prune(now, limiterIdle)
		}
	}
}
