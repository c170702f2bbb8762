package cli

import (
	"context"
	"time"

	"peersync/internal/history"
	"peersync/internal/transfer"
)

// Peer is what the shell needs from the peer runtime.
type Peer interface {
	ListPeers(ctx context.Context) ([]string, error)
	ListFiles(ctx context.Context) ([]string, error)
	Publish(ctx context.Context, filename string) error
	Unpublish(ctx context.Context, filename string) error
	Search(ctx context.Context, substring string) ([]string, error)
	Get(ctx context.Context, filename string) (transfer.Result, error)
	History(ctx context.Context, limit int) ([]history.Transfer, error)
}

type AppContext struct {
	Peer Peer
	// Timeout bounds a single control request; downloads are not bounded.
	Timeout time.Duration
}

func NewAppContext(p Peer, timeout time.Duration) *AppContext {
	return &AppContext{Peer: p, Timeout: timeout}
}

func (a *AppContext) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.Timeout)
}
