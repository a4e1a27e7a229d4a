package rpc

import (
	"context"
	"encoding/json"
	"sync"
)

// Subscription is a server-side subscription opened with Client.Subscribe.
type Subscription struct {
	client      *Client
	id          string
	unsubMethod string

	ch    chan json.RawMessage
	errCh chan error

	finishOnce sync.Once
	unsubOnce  sync.Once
}

// ID is the node-assigned subscription id.
func (s *Subscription) ID() string { return s.id }

// Notifications yields each notification's result. The channel is closed when
// the subscription ends; Err then reports why.
func (s *Subscription) Notifications() <-chan json.RawMessage { return s.ch }

// Err delivers at most one terminal error. Unsubscribe ends the subscription
// without one.
func (s *Subscription) Err() <-chan error { return s.errCh }

// Unsubscribe stops delivery and tells the node to drop the subscription.
// Only the first call does anything.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.unsubOnce.Do(func() {
		c := s.client
		c.mu.Lock()
		_, active := c.subs[s.id]
		delete(c.subs, s.id)
		c.mu.Unlock()
		s.finish(nil)

		if !active || s.unsubMethod == "" {
			return
		}
		err = c.Call(ctx, s.unsubMethod, nil, s.id)
	})
	return err
}

// finish closes the notification channel. Callers must have removed s from
// the client's subscription map first.
func (s *Subscription) finish(err error) {
	s.finishOnce.Do(func() {
		if err != nil {
			s.errCh <- err
		}
		close(s.ch)
	})
}
