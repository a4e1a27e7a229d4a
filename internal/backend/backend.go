// Package backend follows a node's block headers on a background goroutine
// and hands them to the UI through a small buffered channel that the UI polls
// once per frame.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polymesh/meshview/internal/chain"
	"github.com/polymesh/meshview/internal/database/repository"
	"github.com/polymesh/meshview/internal/metrics"
	"github.com/polymesh/meshview/internal/rpc"
)

// UpdateBuffer is the capacity of the update channel. The backend blocks
// while it is full.
const UpdateBuffer = 16

// UpdateMessage is anything the backend reports to the UI.
type UpdateMessage interface{ isUpdate() }

// NewBlock carries a freshly announced header.
type NewBlock struct {
	Header *chain.Header
}

// Connected is sent once the node has identified itself.
type Connected struct {
	Chain   string
	Version string
}

// Stopped is sent when a session ends. Err is nil if the node closed the
// stream cleanly.
type Stopped struct {
	Err error
}

func (NewBlock) isUpdate()  {}
func (Connected) isUpdate() {}
func (Stopped) isUpdate()   {}

// Node is the slice of the chain API the backend uses.
type Node interface {
	ChainName(ctx context.Context) (string, error)
	NodeVersion(ctx context.Context) (string, error)
	SubscribeBlocks(ctx context.Context) (BlockStream, error)
	Close() error
}

// BlockStream yields headers until io.EOF or an error.
type BlockStream interface {
	Next(ctx context.Context) (*chain.Header, error)
	Close(ctx context.Context) error
}

// DialFunc connects to a node.
type DialFunc func(ctx context.Context, url string) (Node, error)

// SessionRecorder persists session bookkeeping; repository.SessionRepo
// satisfies it.
type SessionRecorder interface {
	Start(ctx context.Context, s repository.Session) error
	SetNode(ctx context.Context, id, chain, version string) error
	Finish(ctx context.Context, id string, at time.Time, blocksSeen int64, lastBlock *int64, reason string) error
}

// Options configures a Backend. The zero value connects with chain.Connect,
// logs nothing and does not retry.
type Options struct {
	Logger     zerolog.Logger
	Dial       DialFunc
	Sessions   SessionRecorder
	Metrics    *metrics.Metrics
	RetryDelay time.Duration
}

// Backend owns one background task bound to one URL.
type Backend struct {
	url     string
	updates chan UpdateMessage
	cancel  context.CancelFunc
	done    chan struct{}

	log      zerolog.Logger
	dial     DialFunc
	sessions SessionRecorder
	metrics  *metrics.Metrics
	retry    time.Duration

	closeOnce sync.Once
}

// New starts following url and returns immediately.
func New(ctx context.Context, url string, opts Options) *Backend {
	ctx, cancel := context.WithCancel(ctx)
	b := &Backend{
		url:      url,
		updates:  make(chan UpdateMessage, UpdateBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      opts.Logger.With().Str("component", "backend").Str("url", url).Logger(),
		dial:     opts.Dial,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		retry:    opts.RetryDelay,
	}
	if b.dial == nil {
		b.dial = DialChain(opts.Logger)
	}
	go b.run(ctx)
	return b
}

// URL returns the endpoint this backend follows.
func (b *Backend) URL() string { return b.url }

// NextUpdate returns the next pending update without blocking. It reports
// false when nothing is queued or the backend has finished.
func (b *Backend) NextUpdate() (UpdateMessage, bool) {
	select {
	case msg, ok := <-b.updates:
		return msg, ok
	default:
		return nil, false
	}
}

// Updates exposes the channel for consumers that prefer to block on it.
func (b *Backend) Updates() <-chan UpdateMessage { return b.updates }

// Done is closed when the background task has exited.
func (b *Backend) Done() <-chan struct{} { return b.done }

// Close stops the task and waits for it to exit.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		<-b.done
	})
}

func (b *Backend) run(ctx context.Context) {
	defer close(b.done)
	defer close(b.updates)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			b.metrics.IncRestart()
		}
		err := b.session(ctx)
		if ctx.Err() != nil {
			b.log.Info().Msg("backend stopped: closed")
			return
		}
		if err != nil {
			b.metrics.IncError()
			b.log.Info().Err(err).Msg("backend stopped")
		} else {
			b.log.Info().Msg("backend stopped: stream ended")
		}
		if !b.send(ctx, Stopped{Err: err}) {
			return
		}
		if b.retry <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.retry):
		}
	}
}

// session runs one connect-subscribe-forward cycle.
func (b *Backend) session(ctx context.Context) (err error) {
	id := uuid.NewString()
	var (
		seen int64
		last *int64
	)
	b.record(ctx, func(ctx context.Context, r SessionRecorder) error {
		return r.Start(ctx, repository.Session{ID: id, URL: b.url, StartedAt: time.Now().UTC()})
	})
	defer func() {
		reason := stopReason(ctx, err)
		b.record(context.WithoutCancel(ctx), func(ctx context.Context, r SessionRecorder) error {
			return r.Finish(ctx, id, time.Now().UTC(), seen, last, reason)
		})
	}()

	b.log.Info().Str("session", id).Msg("backend connect")
	node, err := b.dial(ctx, b.url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer node.Close()

	name, err := node.ChainName(ctx)
	if err != nil {
		return fmt.Errorf("chain name: %w", err)
	}
	version, err := node.NodeVersion(ctx)
	if err != nil {
		return fmt.Errorf("node version: %w", err)
	}
	b.record(ctx, func(ctx context.Context, r SessionRecorder) error {
		return r.SetNode(ctx, id, name, version)
	})
	b.log.Info().Str("chain", name).Str("version", version).Msg("connected")
	if !b.send(ctx, Connected{Chain: name, Version: version}) {
		return ctx.Err()
	}

	stream, err := node.SubscribeBlocks(ctx)
	if err != nil {
		return fmt.Errorf("subscribe blocks: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = stream.Close(closeCtx)
	}()

	b.metrics.SetConnected(true)
	defer b.metrics.SetConnected(false)

	for {
		header, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("next block: %w", err)
		}
		seen++
		n := int64(header.Number)
		last = &n
		b.metrics.ObserveBlock(uint32(header.Number))
		if !b.send(ctx, NewBlock{Header: header}) {
			return ctx.Err()
		}
	}
}

func (b *Backend) send(ctx context.Context, msg UpdateMessage) bool {
	select {
	case b.updates <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *Backend) record(ctx context.Context, fn func(context.Context, SessionRecorder) error) {
	if b.sessions == nil {
		return
	}
	if err := fn(ctx, b.sessions); err != nil {
		b.log.Warn().Err(err).Msg("session record failed")
	}
}

func stopReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "closed"
	case err == nil:
		return "stream ended"
	default:
		return err.Error()
	}
}

// DialChain returns a DialFunc backed by chain.Connect.
func DialChain(log zerolog.Logger, opts ...rpc.Option) DialFunc {
	return func(ctx context.Context, url string) (Node, error) {
		api, err := chain.Connect(ctx, url, append([]rpc.Option{rpc.WithLogger(log)}, opts...)...)
		if err != nil {
			return nil, err
		}
		return chainNode{api}, nil
	}
}

type chainNode struct{ *chain.API }

func (n chainNode) SubscribeBlocks(ctx context.Context) (BlockStream, error) {
	sub, err := n.API.SubscribeBlocks(ctx)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
