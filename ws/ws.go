// ════════════════════════════════════════════════════════════════════════════════════════════════
// newHeads WebSocket Subscription
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Block Hash Horse Race
// Component: Push-based head notifications over eth_subscribe
//
// Description:
//   Dials a JSON-RPC websocket endpoint, subscribes to "newHeads" and turns every
//   eth_subscription notification into a block height on a channel. The block source
//   fetches full blocks over HTTP; only heights travel over this socket.
//
// Lifecycle:
//   - Subscribe blocks until the node acknowledges the subscription
//   - A single reader goroutine owns all reads; Unsubscribe owns the final writes
//   - Read failures are reported once on Err, then Heights closes
//   - ctx bounds the dial and handshake only; Unsubscribe is the sole teardown
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/mjpowersjr/block-hash-experiments/constants"
	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/rpc"
	"github.com/mjpowersjr/block-hash-experiments/types"
	"github.com/mjpowersjr/block-hash-experiments/utils"
)

const subscribeID = 1

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// subscribeReply is the node's answer to eth_subscribe.
type subscribeReply struct {
	ID     uint64     `json:"id"`
	Result string     `json:"result"`
	Error  *rpc.Error `json:"error"`
}

// notificationFrame is one eth_subscription push.
type notificationFrame struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

// Notification is a decoded newHeads push.
type Notification struct {
	Subscription string
	Height       uint64
}

// ParseNotification decodes a frame. ok is false for frames that are not
// subscription pushes (replies to our own calls, for instance).
func ParseNotification(payload []byte) (Notification, bool, error) {
	var frame notificationFrame
	if err := sonnet.Unmarshal(payload, &frame); err != nil {
		return Notification{}, false, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Method != "eth_subscription" {
		return Notification{}, false, nil
	}
	height, err := utils.ParseHexU64(frame.Params.Result.Number)
	if err != nil {
		return Notification{}, false, fmt.Errorf("head number %q: %w", frame.Params.Result.Number, err)
	}
	return Notification{Subscription: frame.Params.Subscription, Height: height}, true, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Subscription delivers new head heights pushed by the node.
type Subscription struct {
	conn    *websocket.Conn
	id      string
	heights chan uint64
	errs    chan error
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Subscribe dials url and registers a newHeads subscription. ctx bounds the
// dial and the handshake; once established the subscription lives until
// Unsubscribe or a read failure.
func Subscribe(ctx context.Context, url string) (*Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", types.ErrSourceUnavailable, url, err)
	}

	id, err := handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	debug.DropMessage("WS", fmt.Sprintf("subscribed to newHeads on %s (%s)", url, id))

	s := &Subscription{
		conn:    conn,
		id:      id,
		heights: make(chan uint64, constants.HeadBuffer),
		errs:    make(chan error, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.read()
	return s, nil
}

// handshake sends eth_subscribe and waits for the acknowledgement.
func handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	req := rpc.Request{
		JSONRPC: "2.0",
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
		ID:      subscribeID,
	}
	data, err := sonnet.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode eth_subscribe: %w", err)
	}

	deadline := time.Now().Add(constants.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", fmt.Errorf("%w: eth_subscribe: %w", types.ErrSourceUnavailable, err)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w: eth_subscribe: %w", types.ErrSourceUnavailable, err)
		}
		var reply subscribeReply
		if err := sonnet.Unmarshal(payload, &reply); err != nil {
			debug.DropError("WS", fmt.Errorf("discarding malformed frame: %w", err))
			continue
		}
		if reply.ID != subscribeID {
			continue
		}
		if reply.Error != nil {
			return "", fmt.Errorf("%w: eth_subscribe: %w", types.ErrSourceUnavailable, reply.Error)
		}
		if reply.Result == "" {
			return "", fmt.Errorf("%w: eth_subscribe: empty subscription id", types.ErrSourceUnavailable)
		}
		return reply.Result, nil
	}
}

func (s *Subscription) read() {
	defer close(s.done)
	defer close(s.heights)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.errs <- fmt.Errorf("%w: newHeads: %w", types.ErrSourceUnavailable, err)
			}
			return
		}

		n, ok, err := ParseNotification(payload)
		if err != nil {
			debug.DropError("WS", err)
			continue
		}
		if !ok || n.Subscription != s.id {
			continue
		}
		select {
		case s.heights <- n.Height:
		case <-s.closing:
			return
		}
	}
}

// ID returns the node-assigned subscription id.
func (s *Subscription) ID() string { return s.id }

// Heights returns pushed head heights in arrival order.
func (s *Subscription) Heights() <-chan uint64 { return s.heights }

// Err delivers at most one terminal error.
func (s *Subscription) Err() <-chan error { return s.errs }

// Unsubscribe cancels the subscription on the node, closes the socket and
// waits for the reader to exit. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.closing)

		req := rpc.Request{
			JSONRPC: "2.0",
			Method:  "eth_unsubscribe",
			Params:  []any{s.id},
			ID:      subscribeID + 1,
		}
		deadline := time.Now().Add(time.Second)
		if data, err := sonnet.Marshal(req); err == nil {
			s.conn.SetWriteDeadline(deadline)
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				debug.DropTrace("WS", fmt.Sprintf("eth_unsubscribe not sent: %v", err))
			}
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		}
		s.conn.Close()
		<-s.done
	})
}
