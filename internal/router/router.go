// Package router demultiplexes inbound JSON-RPC traffic per spec §4.2.
// Response correlation (matching a reply to the call that sent it) is
// delegated to sourcegraph/jsonrpc2's Conn, which the session package
// wires this Router into as its Handler; what Router itself classifies
// is everything jsonrpc2.Conn hands to a Handler: server-originated
// requests (auto-replied, never measured) and notifications (buffered
// per method name for consumers to drain with TakeNext).
package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

const notificationBufferSize = 64

// Router implements jsonrpc2.Handler.
type Router struct {
	mu      sync.Mutex
	buffers map[string]chan json.RawMessage

	disconnectOnce sync.Once
	disconnected   chan struct{}
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		buffers:      make(map[string]chan json.RawMessage),
		disconnected: make(chan struct{}),
	}
}

// NotifyDisconnect marks the connection this router is wired to as
// closed. Every blocked TakeNext call, and every later one whose method
// has nothing buffered, returns ErrDisconnected immediately; a later call
// whose method still has buffered notifications may return one of those
// instead. Safe to call more than once or concurrently.
func (r *Router) NotifyDisconnect() {
	r.disconnectOnce.Do(func() { close(r.disconnected) })
}

// Handle satisfies jsonrpc2.Handler. It never runs for responses to our
// own calls -- jsonrpc2.Conn intercepts those before they reach a
// Handler -- so everything here is either a notification (req.Notif,
// no id) or a server-to-client request (has both method and id).
func (r *Router) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		r.deliver(req.Method, req.Params)
		return
	}
	r.replyToServerRequest(ctx, conn, req)
}

// replyToServerRequest answers server->client requests immediately with
// an empty result. These (workspace/configuration, client/registerCapability,
// and similar capability queries) are never measured.
func (r *Router) replyToServerRequest(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var result interface{}
	switch req.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		if req.Params != nil {
			_ = json.Unmarshal(*req.Params, &params)
		}
		items := make([]interface{}, len(params.Items))
		result = items
	default:
		result = nil
	}
	_ = conn.Reply(ctx, req.ID, result)
}

func (r *Router) deliver(method string, params *json.RawMessage) {
	var raw json.RawMessage
	if params != nil {
		raw = *params
	}

	r.mu.Lock()
	ch, ok := r.buffers[method]
	if !ok {
		ch = make(chan json.RawMessage, notificationBufferSize)
		r.buffers[method] = ch
	}
	r.mu.Unlock()

	select {
	case ch <- raw:
	default:
		// Buffer full: drop the oldest to make room rather than block
		// the reader goroutine, which must keep pulling frames.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- raw:
		default:
		}
	}
}

func (r *Router) channel(method string) chan json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.buffers[method]
	if !ok {
		ch = make(chan json.RawMessage, notificationBufferSize)
		r.buffers[method] = ch
	}
	return ch
}

// ErrTimeout is returned by TakeNext when ctx expires before a
// notification arrives. The router itself never imposes a deadline --
// per spec §4.2, deadlines are the caller's concern.
var ErrTimeout = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string { return "timeout" }

// ErrDisconnected is returned by TakeNext once the connection this
// router is wired to has closed -- the child died or exited -- before a
// matching notification arrived.
var ErrDisconnected = errDisconnected{}

type errDisconnected struct{}

func (errDisconnected) Error() string { return "disconnected" }

// TakeNext returns the next buffered notification for method, or blocks
// until one arrives, the connection disconnects, or ctx is done.
func (r *Router) TakeNext(ctx context.Context, method string) (json.RawMessage, error) {
	ch := r.channel(method)
	select {
	case v := <-ch:
		return v, nil
	case <-r.disconnected:
		return nil, ErrDisconnected
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}
