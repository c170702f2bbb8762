// Package transfer implements the peer data channel: a TCP responder that
// streams requested files and the requester that downloads them.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"peersync/internal/history"
	"peersync/internal/lib/logger/sl"
	"peersync/internal/protocol"
)

const (
	DefaultMaxUploads  = 10
	defaultNameTimeout = 5 * time.Second
)

// Recorder stores the outcome of a transfer. It may be nil.
type Recorder interface {
	Record(ctx context.Context, t history.Transfer) error
}

type ServerConfig struct {
	// Dir is the directory files are served from.
	Dir         string
	MaxUploads  int
	NameTimeout time.Duration
	Recorder    Recorder
}

// Server accepts data-channel connections and streams files from Dir.
// Responders run in a bounded pool; connections over the limit are closed.
type Server struct {
	log *slog.Logger
	cfg ServerConfig
	ln  net.Listener
}

// Listen binds addr so the data endpoint is known before Serve starts.
func Listen(addr string, cfg ServerConfig, log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewServer(ln, cfg, log), nil
}

func NewServer(ln net.Listener, cfg ServerConfig, log *slog.Logger) *Server {
	if cfg.MaxUploads <= 0 {
		cfg.MaxUploads = DefaultMaxUploads
	}
	if cfg.NameTimeout <= 0 {
		cfg.NameTimeout = defaultNameTimeout
	}
	return &Server{
		log: log.With(slog.String("component", "transfer")),
		cfg: cfg,
		ln:  ln,
	}
}

// Addr is the bound data endpoint.
func (s *Server) Addr() *net.TCPAddr {
	addr, _ := s.ln.Addr().(*net.TCPAddr)
	return addr
}

// Serve accepts connections until ctx is done, then waits for running
// responders to finish.
func (s *Server) Serve(ctx context.Context) error {
	const op = "transfer.Serve"
	log := s.log.With(slog.String("op", op))

	stop := context.AfterFunc(ctx, func() {
		s.ln.Close()
	})
	defer stop()

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxUploads)

	log.Info("Service started", slog.String("TCPAddr", s.ln.Addr().String()))

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Shutting down listener")
				return g.Wait()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				g.Wait()
				return fmt.Errorf("%s: %w", op, err)
			}
			log.Warn("Error accepting connection", sl.Err(err))
			continue
		}

		ok := g.TryGo(func() error {
			s.handleConnection(ctx, conn)
			return nil
		})
		if !ok {
			log.Warn("Too many connections, rejecting new connection", slog.String("RemoteAddr", conn.RemoteAddr().String()))
			s.record(ctx, history.Transfer{
				ID:         uuid.NewString(),
				Direction:  history.DirectionUpload,
				Filename:   "-",
				RemoteAddr: conn.RemoteAddr().String(),
				Status:     history.StatusRejected,
				Error:      ErrTooManyUploads.Error(),
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			})
			conn.Close()
		}
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	const op = "transfer.handleConnection"

	t := history.Transfer{
		ID:         uuid.NewString(),
		Direction:  history.DirectionUpload,
		RemoteAddr: conn.RemoteAddr().String(),
		StartedAt:  time.Now(),
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("transfer_id", t.ID),
		slog.String("RemoteAddr", t.RemoteAddr),
	)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
		log.Info("Connection closed")
	}()

	log.Info("New connection established")

	name, err := s.readFilename(conn)
	t.Filename = name
	if err != nil {
		log.Warn("Failed to read filename", sl.Err(err))
		s.fail(ctx, t, err)
		return
	}
	log = log.With(slog.String("file", name))

	f, err := s.open(name)
	if err != nil {
		log.Warn("File not available", sl.Err(err))
		s.fail(ctx, t, err)
		return
	}
	defer f.Close()

	t.Bytes, err = io.Copy(conn, f)
	if err != nil {
		log.Warn("Error during upload", slog.Int64("bytes", t.Bytes), sl.Err(err))
		s.fail(ctx, t, err)
		return
	}

	log.Info("Upload completed", slog.Int64("bytes", t.Bytes))
	t.Status = history.StatusCompleted
	t.FinishedAt = time.Now()
	s.record(ctx, t)
}

// readFilename reads the request: the bare filename in the first read.
func (s *Server) readFilename(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.NameTimeout)); err != nil {
		return "", err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, protocol.DefaultBufferSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}

	name := strings.TrimSpace(string(buf[:n]))
	if !protocol.ValidFilename(name) {
		return name, fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return name, nil
}

func (s *Server) open(name string) (*os.File, error) {
	path := filepath.Join(s.cfg.Dir, name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", name)
	}
	return os.Open(path)
}

func (s *Server) fail(ctx context.Context, t history.Transfer, err error) {
	if t.Filename == "" {
		t.Filename = "-"
	}
	t.Status = history.StatusFailed
	t.Error = err.Error()
	t.FinishedAt = time.Now()
	s.record(ctx, t)
}

func (s *Server) record(ctx context.Context, t history.Transfer) {
	if s.cfg.Recorder == nil {
		return
	}
	// the serve context may already be cancelled; the row should still land
	if err := s.cfg.Recorder.Record(context.WithoutCancel(ctx), t); err != nil {
		s.log.Warn("failed to record transfer", slog.String("transfer_id", t.ID), sl.Err(err))
	}
}
