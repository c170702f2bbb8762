// Package node is the peer runtime: it ties the control client, the data
// channel, the local share store and the transfer history together.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"peersync/internal/config"
	"peersync/internal/discovery"
	"peersync/internal/history"
	"peersync/internal/lib/logger/sl"
	"peersync/internal/peer"
	"peersync/internal/protocol"
	"peersync/internal/shares"
	"peersync/internal/transfer"
	"peersync/internal/watcher"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrFileNotInShare = errors.New("file is not in the share directory")
)

type Node struct {
	log *slog.Logger
	cfg *config.Peer

	client     *peer.Client
	server     *transfer.Server
	downloader *transfer.Downloader
	shares     *shares.Store
	history    *history.Storage
	watcher    *watcher.FileWatcher

	mu       sync.Mutex
	username string
	password string
}

// New opens local storage, binds the data channel and connects the control
// client. When no coordinator address is configured it is looked up over mDNS.
func New(ctx context.Context, cfg *config.Peer, log *slog.Logger) (_ *Node, err error) {
	const op = "node.New"
	log = log.With(slog.String("component", "node"))

	n := &Node{log: log, cfg: cfg}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	coordinator := cfg.Coordinator
	if coordinator == "" {
		coordinator, err = discovery.Browse(ctx, discovery.DefaultBrowseTimeout, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	for _, dir := range []string{cfg.ShareDir, cfg.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	n.shares, err = shares.Open(shares.Config{Path: cfg.SharesDB})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n.history, err = history.New(history.Config{DBPath: cfg.HistoryDB}, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n.server, err = transfer.Listen(cfg.DataListen, transfer.ServerConfig{
		Dir:        cfg.ShareDir,
		MaxUploads: cfg.MaxUploads,
		Recorder:   n.history,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n.downloader = transfer.NewDownloader(cfg.DownloadDir, n.history, log)

	n.client, err = peer.Dial(ctx, coordinator, cfg.RequestTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.AutoPublish {
		n.watcher, err = watcher.NewFileWatcher(n, watcher.Config{Logger: log})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("peer ready",
		slog.String("coordinator", coordinator),
		slog.String("data_endpoint", n.server.Addr().String()),
	)
	return n, nil
}

// DataPort is the bound port of the data channel.
func (n *Node) DataPort() int {
	return n.server.Addr().Port
}

func (n *Node) Username() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.username
}

// Login authenticates, reports the data endpoint and republishes every
// stored share.
func (n *Node) Login(ctx context.Context, username, password string) error {
	if err := n.client.Authenticate(ctx, username, password); err != nil {
		return err
	}

	n.mu.Lock()
	n.username, n.password = username, password
	n.mu.Unlock()

	if err := n.client.ReportEndpoint(n.cfg.AdvertiseHost, n.DataPort()); err != nil {
		return err
	}

	n.log.Info("logged in", slog.String("user", username))
	n.replayShares(ctx)
	return nil
}

func (n *Node) replayShares(ctx context.Context) {
	all, err := n.shares.All()
	if err != nil {
		n.log.Warn("failed to load shares", sl.Err(err))
		return
	}

	for _, sh := range all {
		if _, err := os.Stat(sh.Path); err != nil {
			n.log.Info("dropping share of missing file", slog.String("file", sh.Filename))
			n.shares.Delete(sh.Filename)
			continue
		}
		if err := n.client.Publish(ctx, sh.Filename); err != nil {
			n.log.Warn("failed to republish", slog.String("file", sh.Filename), sl.Err(err))
		}
	}
}

// Run keeps the session alive and serves uploads until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	if n.Username() == "" {
		return ErrNotLoggedIn
	}

	if n.watcher != nil {
		if err := n.watcher.Watch(n.cfg.ShareDir); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.client.Heartbeats(ctx, n.cfg.HeartbeatInterval)
	})
	g.Go(func() error {
		return n.server.Serve(ctx)
	})

	if n.watcher != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-n.watcher.Errors():
					n.log.Warn("auto publish", sl.Err(err))
				}
			}
		})
	}

	return g.Wait()
}

// Close releases every resource the node opened.
func (n *Node) Close() error {
	var errs []error
	if n.watcher != nil {
		errs = append(errs, n.watcher.Close())
	}
	if n.client != nil {
		errs = append(errs, n.client.Close())
	}
	if n.server != nil {
		n.server.Close()
	}
	if n.history != nil {
		errs = append(errs, n.history.Close())
	}
	if n.shares != nil {
		errs = append(errs, n.shares.Close())
	}
	return errors.Join(errs...)
}

// withSession runs fn and, if the coordinator no longer knows this peer
// (expired or restarted), logs in again and retries once. pub is ignored
// silently for unknown senders, so a missing reply also triggers a login.
func (n *Node) withSession(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, peer.ErrRejected) && !errors.Is(err, peer.ErrNoResponse) {
		return err
	}

	n.mu.Lock()
	username, password := n.username, n.password
	n.mu.Unlock()
	if username == "" {
		return err
	}

	n.log.Info("session lost, logging in again", slog.String("user", username))
	if lerr := n.Login(ctx, username, password); lerr != nil {
		if errors.Is(lerr, peer.ErrNoResponse) {
			return err
		}
		return fmt.Errorf("re-login: %w", lerr)
	}
	return fn()
}

func (n *Node) ListPeers(ctx context.Context) (peers []string, err error) {
	err = n.withSession(ctx, func() error {
		peers, err = n.client.ListPeers(ctx)
		return err
	})
	return peers, err
}

func (n *Node) ListFiles(ctx context.Context) (files []string, err error) {
	err = n.withSession(ctx, func() error {
		files, err = n.client.ListFiles(ctx)
		return err
	})
	return files, err
}

func (n *Node) Search(ctx context.Context, substring string) (files []string, err error) {
	err = n.withSession(ctx, func() error {
		files, err = n.client.Search(ctx, substring)
		return err
	})
	return files, err
}

// Publish announces a file from the share directory and remembers it.
func (n *Node) Publish(ctx context.Context, filename string) error {
	if !protocol.ValidFilename(filename) {
		return fmt.Errorf("%w: %q", peer.ErrInvalidFilename, filename)
	}

	path := filepath.Join(n.cfg.ShareDir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrFileNotInShare, filename)
	}

	err = n.withSession(ctx, func() error {
		return n.client.Publish(ctx, filename)
	})
	if err != nil {
		return err
	}

	if err := n.shares.Put(shares.Share{Filename: filename, Path: path, PublishedAt: time.Now()}); err != nil {
		n.log.Warn("failed to store share", slog.String("file", filename), sl.Err(err))
	}
	return nil
}

// Unpublish withdraws a file and forgets it locally.
func (n *Node) Unpublish(ctx context.Context, filename string) error {
	err := n.withSession(ctx, func() error {
		return n.client.Unpublish(ctx, filename)
	})
	if err != nil && !errors.Is(err, peer.ErrNotPublished) {
		return err
	}

	if derr := n.shares.Delete(filename); derr != nil {
		n.log.Warn("failed to delete share", slog.String("file", filename), sl.Err(derr))
	}
	return err
}

// Get resolves filename through the coordinator and downloads it. On a
// transfer failure the result still names the publisher.
func (n *Node) Get(ctx context.Context, filename string) (transfer.Result, error) {
	var loc protocol.Location
	err := n.withSession(ctx, func() (err error) {
		loc, err = n.client.Locate(ctx, filename)
		return err
	})
	if err != nil {
		return transfer.Result{Filename: filename}, err
	}

	res := transfer.Result{Filename: filename, From: loc.Username}
	res.Bytes, err = n.downloader.Download(ctx, loc, filename)
	return res, err
}

// History returns the most recent transfers, newest first.
func (n *Node) History(ctx context.Context, limit int) ([]history.Transfer, error) {
	return n.history.List(ctx, history.Filter{Limit: limit})
}

// FileAdded publishes files that appear in the share directory.
func (n *Node) FileAdded(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.RequestTimeout)
	defer cancel()

	name := filepath.Base(path)
	if err := n.Publish(ctx, name); err != nil {
		return err
	}
	n.log.Info("auto published", slog.String("file", name))
	return nil
}

// FileRemoved unpublishes files that disappear from the share directory.
func (n *Node) FileRemoved(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.RequestTimeout)
	defer cancel()

	name := filepath.Base(path)
	if _, err := n.shares.Get(name); errors.Is(err, shares.ErrShareNotFound) {
		return nil
	}

	err := n.Unpublish(ctx, name)
	if errors.Is(err, peer.ErrNotPublished) {
		return nil
	}
	if err == nil {
		n.log.Info("auto unpublished", slog.String("file", name))
	}
	return err
}
