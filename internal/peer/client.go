// Package peer is the peer side of the control channel: a request/reply
// client for the coordinator plus the fire-and-forget heartbeat.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"peersync/internal/lib/logger/sl"
	"peersync/internal/protocol"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	drainWindow           = time.Millisecond
)

// Client talks to one coordinator over a connected UDP socket. At most one
// request is outstanding at a time.
type Client struct {
	log     *slog.Logger
	conn    net.Conn
	timeout time.Duration

	mu  sync.Mutex
	buf []byte
	// stale is set when a request timed out; its reply may still arrive.
	stale bool
}

// Dial connects a UDP socket to the coordinator at addr.
func Dial(ctx context.Context, addr string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator %s: %w", addr, err)
	}
	return NewClient(conn, timeout, log), nil
}

func NewClient(conn net.Conn, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		log:     log.With(slog.String("component", "control"), slog.String("coordinator", conn.RemoteAddr().String())),
		conn:    conn,
		timeout: timeout,
		buf:     make([]byte, protocol.MaxDatagramSize),
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends msg and waits for one reply datagram.
func (c *Client) Request(ctx context.Context, msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale {
		c.drain()
	}

	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return "", fmt.Errorf("send %q: %w", msg, err)
	}

	deadline := time.Now().Add(c.timeout)
	ctxDeadline := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxDeadline = d, true
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := c.conn.Read(c.buf)
	if err != nil {
		c.stale = true
		if ctxDeadline && errors.Is(err, os.ErrDeadlineExceeded) {
			<-ctx.Done()
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrNoResponse
		}
		// e.g. ICMP port unreachable surfaces as a read error
		return "", fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	return string(c.buf[:n]), nil
}

// drain discards replies to requests that already timed out.
func (c *Client) drain() {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			break
		}
		n, err := c.conn.Read(c.buf)
		if err != nil {
			break
		}
		c.log.Debug("discarded late reply", slog.String("reply", string(c.buf[:n])))
	}
	c.stale = false
}

// send writes a fire-and-forget message.
func (c *Client) send(msg string) error {
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("send %q: %w", msg, err)
	}
	return nil
}

// Authenticate logs in with the given credentials.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	r, err := c.Request(ctx, protocol.TokenAuth+" "+username+" "+password)
	if err != nil {
		return err
	}

	switch r {
	case protocol.ReplyOK:
		return nil
	case protocol.ReplyError:
		return ErrAuthRejected
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, r)
	}
}

// ReportEndpoint tells the coordinator where this peer serves files.
func (c *Client) ReportEndpoint(host string, port int) error {
	return c.send(protocol.TokenDataEndpoint + " " + host + " " + strconv.Itoa(port))
}

func (c *Client) Heartbeat() error {
	return c.send(protocol.TokenHeartbeat)
}

// Heartbeats sends a heartbeat every interval until ctx is done. Send
// failures are logged and do not stop the loop.
func (c *Client) Heartbeats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil {
				c.log.Warn("heartbeat failed", sl.Err(err))
			}
		}
	}
}

// ListPeers returns the other active peers; empty when there are none.
func (c *Client) ListPeers(ctx context.Context) ([]string, error) {
	return c.list(ctx, protocol.TokenListPeers, protocol.ReplyNoActivePeers)
}

// ListFiles returns every published filename.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	return c.list(ctx, protocol.TokenListFiles, protocol.ReplyNoPublishedFiles)
}

// Search returns filenames containing substring published by other peers.
func (c *Client) Search(ctx context.Context, substring string) ([]string, error) {
	if substring == "" {
		return nil, fmt.Errorf("%w: empty search", ErrRejected)
	}
	return c.list(ctx, protocol.TokenSearch+" "+substring, protocol.ReplyNoFilesFound)
}

func (c *Client) list(ctx context.Context, msg, empty string) ([]string, error) {
	r, err := c.Request(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch r {
	case empty:
		return nil, nil
	case protocol.ReplyError:
		return nil, ErrRejected
	}
	return protocol.SplitList(r), nil
}

func (c *Client) Publish(ctx context.Context, filename string) error {
	if !protocol.ValidFilename(filename) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	r, err := c.Request(ctx, protocol.TokenPublish+" "+filename)
	if err != nil {
		return err
	}

	switch r {
	case protocol.ReplyPublished:
		return nil
	case protocol.ReplyError:
		return ErrRejected
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, r)
	}
}

func (c *Client) Unpublish(ctx context.Context, filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	r, err := c.Request(ctx, protocol.TokenUnpublish+" "+filename)
	if err != nil {
		return err
	}

	switch r {
	case protocol.ReplyUnpublished:
		return nil
	case protocol.ReplyUnpublishFailed:
		return ErrNotPublished
	case protocol.ReplyError:
		return ErrRejected
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, r)
	}
}

// Locate asks the coordinator where filename can be fetched from.
func (c *Client) Locate(ctx context.Context, filename string) (protocol.Location, error) {
	if !protocol.ValidFilename(filename) {
		return protocol.Location{}, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	r, err := c.Request(ctx, protocol.TokenGet+" "+filename)
	if err != nil {
		return protocol.Location{}, err
	}

	switch r {
	case protocol.ReplyFileNotFound:
		return protocol.Location{}, ErrFileNotFound
	case protocol.ReplyNoActivePeerHasIt:
		return protocol.Location{}, ErrNoActivePeer
	case protocol.ReplyError:
		return protocol.Location{}, ErrRejected
	}

	loc, err := protocol.ParseLocation(r)
	if err != nil {
		return protocol.Location{}, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	return loc, nil
}
