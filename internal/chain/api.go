// Package chain provides typed access to the RPC surface of a Substrate-based
// node such as Polymesh: block headers, their hashes and the new-heads feed.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/polymesh/meshview/internal/rpc"
)

// API is a typed view over an rpc.Client.
type API struct {
	client *rpc.Client
}

// Connect dials url and returns an API bound to the connection.
func Connect(ctx context.Context, url string, opts ...rpc.Option) (*API, error) {
	c, err := rpc.Dial(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	return &API{client: c}, nil
}

// New wraps an existing client.
func New(c *rpc.Client) *API { return &API{client: c} }

func (a *API) Client() *rpc.Client { return a.client }

func (a *API) Close() error { return a.client.Close() }

// ChainName returns the chain's display name (system_chain).
func (a *API) ChainName(ctx context.Context) (string, error) {
	var name string
	if err := a.client.Call(ctx, "system_chain", &name); err != nil {
		return "", err
	}
	return name, nil
}

// NodeVersion returns the node software version (system_version).
func (a *API) NodeVersion(ctx context.Context) (string, error) {
	var v string
	if err := a.client.Call(ctx, "system_version", &v); err != nil {
		return "", err
	}
	return v, nil
}

// Header fetches a header by hash, or the best header when hash is nil.
func (a *API) Header(ctx context.Context, hash *Hash) (*Header, error) {
	var params []any
	if hash != nil {
		params = append(params, hash.String())
	}
	var h *Header
	if err := a.client.Call(ctx, "chain_getHeader", &h, params...); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("chain_getHeader: block %v not found", hash)
	}
	return h, nil
}

// SubscribeBlocks follows new best-block headers.
func (a *API) SubscribeBlocks(ctx context.Context) (*BlockSubscription, error) {
	sub, err := a.client.Subscribe(ctx, "chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	if err != nil {
		return nil, err
	}
	return &BlockSubscription{sub: sub}, nil
}

// BlockSubscription is a stream of headers.
type BlockSubscription struct {
	sub *rpc.Subscription
}

// Next blocks until the next header arrives. It returns io.EOF once the
// subscription was closed without error.
func (s *BlockSubscription) Next(ctx context.Context) (*Header, error) {
	select {
	case raw, ok := <-s.sub.Notifications():
		if !ok {
			select {
			case err := <-s.sub.Err():
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		var h Header
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("decode header: %w", err)
		}
		return &h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes.
func (s *BlockSubscription) Close(ctx context.Context) error {
	return s.sub.Unsubscribe(ctx)
}
