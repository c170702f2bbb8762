package coordinator

import (
	"errors"
	"log/slog"

	"peersync/internal/lib/logger/sl"
	"peersync/internal/protocol"
	"peersync/internal/registry"
	"peersync/internal/session"
)

func (e *Engine) handleAuth(c caller, req protocol.Request) Reply {
	username, password, err := protocol.Credentials(req.Arg)
	if err != nil {
		e.log.Info("Received AUTH (invalid format)", slog.String("addr", c.addr))
		return e.send(c, protocol.ReplyError)
	}

	c.session.Username = username
	e.received(c, req.Kind)

	if active, ok := e.sessions.FindByUsername(username); ok && active.Addr != c.addr {
		e.log.Info("user already active", slog.String("user", username), slog.String("active_addr", active.Addr))
		return e.send(c, protocol.ReplyError)
	}

	if !e.auth.Verify(username, password) {
		return e.send(c, protocol.ReplyError)
	}

	if _, err := e.sessions.Upsert(c.addr, username, e.now()); err != nil {
		e.log.Warn("failed to create session", slog.String("user", username), sl.Err(err))
		return e.send(c, protocol.ReplyError)
	}

	return e.send(c, protocol.ReplyOK)
}

func (e *Engine) handleHeartbeat(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)
	e.sessions.Touch(c.addr, e.now())
	return noReply()
}

func (e *Engine) handleDataEndpoint(c caller, req protocol.Request) Reply {
	host, port, err := protocol.Endpoint(req.Arg)
	if err != nil {
		e.log.Warn("Received unreadable TCP address", slog.String("addr", c.addr), slog.String("payload", req.Arg))
		return noReply()
	}

	e.received(c, req.Kind)
	e.sessions.SetEndpoint(c.addr, session.Endpoint{Host: host, Port: port})
	return noReply()
}

func (e *Engine) handleListPeers(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)

	var peers []string
	for _, s := range e.sessions.All() {
		if s.Addr != c.addr {
			peers = append(peers, s.Username)
		}
	}

	if len(peers) == 0 {
		return e.send(c, protocol.ReplyNoActivePeers)
	}
	return e.send(c, protocol.JoinList(peers))
}

func (e *Engine) handleListFiles(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)

	files := e.registry.ListFilenames()
	if len(files) == 0 {
		return e.send(c, protocol.ReplyNoPublishedFiles)
	}
	return e.send(c, protocol.JoinList(files))
}

func (e *Engine) handlePublish(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)
	if req.Arg == "" {
		return e.send(c, protocol.ReplyError)
	}

	e.registry.Publish(req.Arg, c.session.Username)
	return e.send(c, protocol.ReplyPublished)
}

func (e *Engine) handleUnpublish(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)
	if req.Arg == "" {
		return e.send(c, protocol.ReplyError)
	}

	err := e.registry.Unpublish(req.Arg, c.session.Username)
	if errors.Is(err, registry.ErrNotPublished) {
		return e.send(c, protocol.ReplyUnpublishFailed)
	}
	return e.send(c, protocol.ReplyUnpublished)
}

func (e *Engine) handleSearch(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)
	if req.Arg == "" {
		return e.send(c, protocol.ReplyError)
	}

	found := e.registry.Search(req.Arg, c.session.Username)
	if len(found) == 0 {
		return e.send(c, protocol.ReplyNoFilesFound)
	}
	return e.send(c, protocol.JoinList(found))
}

// handleGet resolves a filename to the data endpoint of the first reachable
// publisher. Publishers without an active session or without a reported
// endpoint are skipped; the registry is left untouched.
func (e *Engine) handleGet(c caller, req protocol.Request) Reply {
	e.received(c, req.Kind)
	if req.Arg == "" {
		return e.send(c, protocol.ReplyError)
	}

	publishers, ok := e.registry.Publishers(req.Arg)
	if !ok {
		return e.send(c, protocol.ReplyFileNotFound)
	}

	for _, username := range publishers {
		if username == c.session.Username {
			continue
		}

		s, ok := e.sessions.FindByUsername(username)
		if !ok {
			e.log.Debug("skipping inactive publisher", slog.String("user", username), slog.String("file", req.Arg))
			continue
		}
		if s.DataEndpoint.IsZero() {
			e.log.Debug("skipping publisher without endpoint", slog.String("user", username), slog.String("file", req.Arg))
			continue
		}

		loc := protocol.Location{
			Username: s.Username,
			Host:     s.DataEndpoint.Host,
			Port:     s.DataEndpoint.Port,
		}
		return e.send(c, loc.String())
	}

	return e.send(c, protocol.ReplyNoActivePeerHasIt)
}

func (e *Engine) handleUnknown(c caller, req protocol.Request) Reply {
	e.log.Info("Sent ERR (unknown command)", slog.String("addr", c.addr))
	return reply(protocol.ReplyError)
}
