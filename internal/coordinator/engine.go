// Package coordinator implements the PeerSync rendezvous coordinator: the
// control-protocol engine, the liveness monitor and the UDP control loop.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"peersync/internal/protocol"
	"peersync/internal/registry"
	"peersync/internal/session"
)

// Authenticator verifies peer credentials.
type Authenticator interface {
	Verify(username, password string) bool
}

// Reply is the engine's answer to one datagram. Fire-and-forget requests and
// silently ignored ones produce a Reply with Send == false.
type Reply struct {
	Text string
	Send bool
}

func reply(text string) Reply {
	return Reply{Text: text, Send: true}
}

func noReply() Reply {
	return Reply{}
}

// caller is the sender of a datagram as seen by the engine: either an
// unauthenticated address or an address bound to a session.
type caller struct {
	addr          string
	session       session.Session
	authenticated bool
}

func (c caller) name() string {
	if c.session.Username != "" {
		return c.session.Username
	}
	return "unknown client"
}

type handlerFunc func(c caller, req protocol.Request) Reply

type handler struct {
	fn handlerFunc
	// requireSession rejects callers without an active session.
	requireSession bool
	// silent drops rejected callers without a reply instead of sending ERR.
	silent bool
}

// Engine dispatches control requests against the session directory and the
// publication registry. Handlers and sweeps run one at a time.
type Engine struct {
	mu       sync.Mutex
	log      *slog.Logger
	sessions *session.Directory
	registry *registry.Registry
	auth     Authenticator
	now      func() time.Time
	handlers map[protocol.Kind]handler
}

// NewEngine wires an engine around the given tables. now defaults to time.Now.
func NewEngine(
	sessions *session.Directory,
	reg *registry.Registry,
	auth Authenticator,
	now func() time.Time,
	log *slog.Logger,
) *Engine {
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		log:      log.With(slog.String("component", "engine")),
		sessions: sessions,
		registry: reg,
		auth:     auth,
		now:      now,
	}

	e.handlers = map[protocol.Kind]handler{
		protocol.KindAuth:         {fn: e.handleAuth},
		protocol.KindHeartbeat:    {fn: e.handleHeartbeat, requireSession: true, silent: true},
		protocol.KindDataEndpoint: {fn: e.handleDataEndpoint, requireSession: true, silent: true},
		protocol.KindListPeers:    {fn: e.handleListPeers, requireSession: true},
		protocol.KindListFiles:    {fn: e.handleListFiles, requireSession: true},
		protocol.KindPublish:      {fn: e.handlePublish, requireSession: true, silent: true},
		protocol.KindUnpublish:    {fn: e.handleUnpublish, requireSession: true},
		protocol.KindSearch:       {fn: e.handleSearch, requireSession: true},
		protocol.KindGet:          {fn: e.handleGet, requireSession: true},
		protocol.KindUnknown:      {fn: e.handleUnknown},
	}

	return e
}

// Handle processes one datagram from addr. It never panics: a fault inside a
// handler is logged and answered with ERR.
func (e *Engine) Handle(addr string, payload []byte) (r Reply) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req := protocol.Parse(payload)

	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("handler panic",
				slog.String("addr", addr),
				slog.String("cmd", req.Kind.String()),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			r = reply(protocol.ReplyError)
		}
	}()

	return e.dispatch(addr, req)
}

func (e *Engine) dispatch(addr string, req protocol.Request) Reply {
	h, ok := e.handlers[req.Kind]
	if !ok {
		h = e.handlers[protocol.KindUnknown]
	}

	c := e.resolve(addr)
	if h.requireSession && !c.authenticated {
		e.log.Info("Received "+req.Kind.String()+" from unknown client", slog.String("addr", addr))
		if h.silent {
			return noReply()
		}
		return e.send(c, protocol.ReplyError)
	}

	return h.fn(c, req)
}

func (e *Engine) resolve(addr string) caller {
	s, ok := e.sessions.Get(addr)
	return caller{addr: addr, session: s, authenticated: ok}
}

// Expire removes sessions whose heartbeat is older than timeout.
func (e *Engine) Expire(timeout time.Duration) []session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sessions.RemoveExpired(e.now(), timeout)
}

// Stats reports the size of both tables.
func (e *Engine) Stats() (sessions, files int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sessions.Len(), e.registry.Len()
}

func (e *Engine) received(c caller, kind protocol.Kind) {
	level := slog.LevelInfo
	if kind == protocol.KindHeartbeat {
		level = slog.LevelDebug
	}
	e.log.Log(context.Background(), level, "Received "+kind.String()+" from "+c.name(), slog.String("addr", c.addr))
}

// send logs the outcome of a request and wraps text into a Reply.
func (e *Engine) send(c caller, text string) Reply {
	outcome := "OK"
	switch text {
	case protocol.ReplyError, protocol.ReplyUnpublishFailed, protocol.ReplyFileNotFound, protocol.ReplyNoActivePeerHasIt:
		outcome = "ERR"
	}
	e.log.Info("Sent "+outcome+" to "+c.name(), slog.String("addr", c.addr))
	return reply(text)
}
