// Package provider binds the JSON-RPC client and the websocket subscription
// into the chain collaborator the block source consumes.
package provider

import (
	"context"
	"time"

	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/rpc"
	"github.com/mjpowersjr/block-hash-experiments/source"
	"github.com/mjpowersjr/block-hash-experiments/types"
	"github.com/mjpowersjr/block-hash-experiments/ws"
)

// Provider answers tip and block queries over HTTP and streams new heads
// over a websocket when WSURL is set, or by polling the tip otherwise.
type Provider struct {
	RPC          *rpc.Client
	WSURL        string
	PollInterval time.Duration
}

// New creates a provider for the given endpoints.
func New(rpcURL, wsURL string, requestTimeout, pollInterval time.Duration) *Provider {
	return &Provider{
		RPC:          rpc.NewClient(rpcURL, requestTimeout),
		WSURL:        wsURL,
		PollInterval: pollInterval,
	}
}

func (p *Provider) CurrentHeight(ctx context.Context) (uint64, error) {
	return p.RPC.BlockNumber(ctx)
}

func (p *Provider) Block(ctx context.Context, height uint64) (*types.Block, error) {
	return p.RPC.BlockByNumber(ctx, height)
}

// SubscribeNewBlocks prefers the websocket endpoint. Head polling is used
// only when none is configured; a failing websocket is not silently replaced.
func (p *Provider) SubscribeNewBlocks(ctx context.Context) (source.Subscription, error) {
	if p.WSURL != "" {
		sub, err := ws.Subscribe(ctx, p.WSURL)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	debug.DropMessage("PROVIDER", "no websocket endpoint, polling for new heads via "+p.RPC.URL())
	return p.RPC.SubscribeHeads(ctx, p.PollInterval), nil
}

var _ source.Chain = (*Provider)(nil)
