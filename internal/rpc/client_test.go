package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// serve starts a websocket endpoint that hands each request to handle on the
// connection's goroutine.
func serve(t *testing.T, handle func(conn *websocket.Conn, req rpcRequest)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(conn, req)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func reply(conn *websocket.Conn, id uint64, result any) {
	_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func notify(conn *websocket.Conn, method string, sub any, result any) {
	_ = conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  map[string]any{"subscription": sub, "result": result},
	})
}

func dial(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialRejectsNonWebsocketScheme(t *testing.T) {
	_, err := Dial(context.Background(), "https://example.invalid")
	require.ErrorContains(t, err, "scheme must be ws or wss")
}

func TestCallDecodesResult(t *testing.T) {
	params := make(chan string, 1)
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		switch req.Method {
		case "system_chain":
			select {
			case params <- string(req.Params):
			default:
			}
			reply(conn, req.ID, "Polymesh Staging")
		case "echo":
			var params []string
			_ = json.Unmarshal(req.Params, &params)
			reply(conn, req.ID, strings.Join(params, ","))
		}
	})
	c := dial(t, url)
	ctx := testContext(t)

	var name string
	require.NoError(t, c.Call(ctx, "system_chain", &name))
	require.Equal(t, "Polymesh Staging", name)
	require.JSONEq(t, `[]`, <-params, "params must be an empty array, not null")

	var echoed string
	require.NoError(t, c.Call(ctx, "echo", &echoed, "a", "b"))
	require.Equal(t, "a,b", echoed)

	require.NoError(t, c.Call(ctx, "system_chain", nil))
}

func TestCallReturnsNodeError(t *testing.T) {
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "Method not found"},
		})
	})
	c := dial(t, url)

	err := c.Call(testContext(t), "nope", nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32601, rpcErr.Code)
	require.Equal(t, "Method not found", rpcErr.Message)
}

func TestResponsesMatchedByID(t *testing.T) {
	held := make(chan rpcRequest, 1)
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		switch req.Method {
		case "slow":
			held <- req
		case "fast":
			reply(conn, req.ID, "fast")
			slow := <-held
			reply(conn, slow.ID, "slow")
		}
	})
	c := dial(t, url)
	ctx := testContext(t)

	slowDone := make(chan string, 1)
	go func() {
		var out string
		_ = c.Call(ctx, "slow", &out)
		slowDone <- out
	}()
	// let the slow request reach the server first
	require.Eventually(t, func() bool { return len(held) == 1 }, time.Second, 5*time.Millisecond)

	var fast string
	require.NoError(t, c.Call(ctx, "fast", &fast))
	require.Equal(t, "fast", fast)
	require.Equal(t, "slow", <-slowDone)
}

func TestSubscriptionDeliversInOrder(t *testing.T) {
	unsubscribed := make(chan []string, 1)
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		switch req.Method {
		case "chain_subscribeNewHeads":
			reply(conn, req.ID, "sub-1")
			// sent back to back with the response
			for i := 1; i <= 3; i++ {
				notify(conn, "chain_newHead", "sub-1", map[string]any{"n": i})
			}
			notify(conn, "chain_newHead", "other", map[string]any{"n": 99})
		case "chain_unsubscribeNewHeads":
			var params []string
			_ = json.Unmarshal(req.Params, &params)
			unsubscribed <- params
			reply(conn, req.ID, true)
		}
	})
	c := dial(t, url)
	ctx := testContext(t)

	sub, err := c.Subscribe(ctx, "chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	require.NoError(t, err)
	require.Equal(t, "sub-1", sub.ID())

	for i := 1; i <= 3; i++ {
		select {
		case raw := <-sub.Notifications():
			var got struct{ N int }
			require.NoError(t, json.Unmarshal(raw, &got))
			require.Equal(t, i, got.N)
		case <-ctx.Done():
			t.Fatalf("notification %d not delivered", i)
		}
	}

	require.NoError(t, sub.Unsubscribe(ctx))
	require.Equal(t, []string{"sub-1"}, <-unsubscribed)
	_, open := <-sub.Notifications()
	require.False(t, open)
	require.NoError(t, sub.Unsubscribe(ctx), "second unsubscribe is a no-op")

	select {
	case err := <-sub.Err():
		t.Fatalf("unexpected terminal error %v", err)
	default:
	}
}

func TestNumericSubscriptionID(t *testing.T) {
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		reply(conn, req.ID, 7)
		notify(conn, "chain_newHead", 7, "hello")
	})
	c := dial(t, url)

	sub, err := c.Subscribe(testContext(t), "chain_subscribeNewHeads", "")
	require.NoError(t, err)
	require.Equal(t, "7", sub.ID())
	require.JSONEq(t, `"hello"`, string(<-sub.Notifications()))
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		reply(conn, req.ID, "s")
		for i := 0; i < 5; i++ {
			notify(conn, "chain_newHead", "s", i)
		}
	})
	c := dial(t, url, WithSubscriptionBuffer(2))

	sub, err := c.Subscribe(testContext(t), "chain_subscribeNewHeads", "")
	require.NoError(t, err)

	select {
	case err := <-sub.Err():
		require.ErrorIs(t, err, ErrSubscriberTooSlow)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not dropped")
	}
	n := 0
	for range sub.Notifications() {
		n++
	}
	require.Equal(t, 2, n)
}

func TestCloseFailsPendingCalls(t *testing.T) {
	received := make(chan struct{})
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		close(received)
	})
	c := dial(t, url)

	errc := make(chan error, 1)
	go func() { errc <- c.Call(context.Background(), "hang", nil) }()
	<-received
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released")
	}
	require.ErrorIs(t, c.Call(context.Background(), "after", nil), ErrClosed)
	require.ErrorIs(t, c.Err(), ErrClosed)
}

func TestServerDisconnectEndsSubscription(t *testing.T) {
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		reply(conn, req.ID, "s")
		_ = conn.Close()
	})
	c := dial(t, url)

	sub, err := c.Subscribe(testContext(t), "chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	require.NoError(t, err)

	select {
	case err := <-sub.Err():
		require.True(t, errors.Is(err, ErrClosed), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	<-c.Done()
	require.NoError(t, sub.Unsubscribe(context.Background()))
}

func TestCallHonoursContext(t *testing.T) {
	url := serve(t, func(*websocket.Conn, rpcRequest) {})
	c := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "never", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledSubscribeIsUndone(t *testing.T) {
	unsubscribed := make(chan string, 1)
	url := serve(t, func(conn *websocket.Conn, req rpcRequest) {
		if req.Method == "heads_unsubscribe" {
			var params []string
			_ = json.Unmarshal(req.Params, &params)
			unsubscribed <- strings.Join(params, ",")
			reply(conn, req.ID, true)
		}
	})
	c := dial(t, url)

	// the node accepted the subscription just as the caller gave up
	sub := &Subscription{
		client:      c,
		unsubMethod: "heads_unsubscribe",
		ch:          make(chan json.RawMessage, 1),
		errCh:       make(chan error, 1),
	}
	c.mu.Lock()
	c.pending[99] = &pendingCall{ch: make(chan response, 1), sub: sub}
	c.mu.Unlock()
	c.dispatch([]byte(`{"jsonrpc":"2.0","id":99,"result":"late"}`))
	c.forget(99)

	c.abandon(sub)

	c.mu.Lock()
	require.Empty(t, c.subs)
	c.mu.Unlock()
	_, open := <-sub.Notifications()
	require.False(t, open)

	select {
	case id := <-unsubscribed:
		require.Equal(t, "late", id)
	case <-time.After(2 * time.Second):
		t.Fatal("node never got the unsubscribe")
	}
}

func TestCancelledSubscribeBeforeReplyRegistersNothing(t *testing.T) {
	url := serve(t, func(*websocket.Conn, rpcRequest) {})
	c := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Subscribe(ctx, "heads_subscribe", "heads_unsubscribe")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Empty(t, c.subs)
	require.Empty(t, c.pending)
}
