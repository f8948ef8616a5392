package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-token-console/internal/observability"
)

// ErrClientClosed is returned by subscriptions on a closed WSClient.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClient implements SignatureSubscriber using gorilla/websocket.
// It does not reconnect: when the connection drops every open subscription
// channel is closed and callers fall back to polling.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger
	metrics  *observability.Metrics

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to its signature and channel
	subs   map[uint64]signatureSub
	subsMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan uint64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

var _ SignatureSubscriber = (*WSClient)(nil)

type signatureSub struct {
	signature string
	ch        chan SignatureNotification
}

// NewWSClient connects to endpoint. config and metrics may be nil.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, metrics *observability.Metrics) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		logger:      log.New(os.Stdout, "[ws] ", log.LstdFlags),
		metrics:     metrics,
		conn:        conn,
		subs:        make(map[uint64]signatureSub),
		pendingSubs: make(map[uint64]chan uint64),
		done:        make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// wsRequest represents a JSON-RPC request over WebSocket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage is the union of subscription responses and notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

func (c *WSClient) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *WSClient) dropPending(reqID uint64) {
	c.pendingSubsMu.Lock()
	delete(c.pendingSubs, reqID)
	c.pendingSubsMu.Unlock()
}

// SubscribeSignature subscribes to the confirmation of a single signature.
func (c *WSClient) SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]interface{}{"commitment": commitment},
		},
	}

	confirmCh := make(chan uint64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	if err := c.write(req); err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	var subID uint64
	select {
	case id, ok := <-confirmCh:
		if !ok {
			if c.closed.Load() {
				return nil, ErrClientClosed
			}
			return nil, fmt.Errorf("signatureSubscribe %s rejected", signature)
		}
		subID = id
	case <-time.After(c.config.SubscribeTimeout):
		c.dropPending(reqID)
		return nil, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}

	ch := make(chan SignatureNotification, 1)
	c.subsMu.Lock()
	if c.closed.Load() {
		c.subsMu.Unlock()
		close(ch)
		return ch, nil
	}
	c.subs[subID] = signatureSub{signature: signature, ch: ch}
	c.subsMu.Unlock()

	// The server drops the subscription after notifying; unsubscribe only
	// when the caller gives up first.
	go func() {
		select {
		case <-ctx.Done():
			if c.removeSub(subID) {
				_ = c.write(wsRequest{
					JSONRPC: "2.0",
					ID:      c.requestID.Add(1),
					Method:  "signatureUnsubscribe",
					Params:  []interface{}{subID},
				})
			}
		case <-c.done:
		}
	}()

	return ch, nil
}

// removeSub closes and forgets the channel for subID. It reports whether
// the subscription was still open.
func (c *WSClient) removeSub(subID uint64) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	sub, ok := c.subs[subID]
	if ok {
		close(sub.ch)
		delete(c.subs, subID)
	}
	return ok
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.conn.Close()

	c.wg.Wait()
	c.closeAll()
	return nil
}

// closeAll closes every subscription and pending channel.
func (c *WSClient) closeAll() {
	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Printf("read: %v", err)
				c.closeAll()
			}
			return
		}
		c.handleMessage(message)
	}
}

// pingLoop sends periodic ping frames.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil && !c.closed.Load() {
				c.logger.Printf("ping: %v", err)
			}
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Printf("unmarshal message: %v", err)
		return
	}

	switch {
	case msg.Method == "signatureNotification" && msg.Params != nil:
		c.metrics.RecordWSMessage("notification")
		c.handleSignatureNotification(&msg)
	case msg.Error != nil:
		c.metrics.RecordWSMessage("error")
		c.logger.Printf("error response: id=%d %v", msg.ID, msg.Error)
		// Fail the waiter fast instead of letting it time out.
		c.pendingSubsMu.Lock()
		if ch, ok := c.pendingSubs[msg.ID]; ok {
			close(ch)
			delete(c.pendingSubs, msg.ID)
		}
		c.pendingSubsMu.Unlock()
	case msg.ID != 0 && len(msg.Result) > 0:
		c.metrics.RecordWSMessage("response")
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			// signatureUnsubscribe answers with a bool
			return
		}
		c.pendingSubsMu.Lock()
		ch, ok := c.pendingSubs[msg.ID]
		if ok {
			delete(c.pendingSubs, msg.ID)
		}
		c.pendingSubsMu.Unlock()
		if ok {
			ch <- subID
		}
	}
}

// handleSignatureNotification delivers a notification and ends the subscription.
func (c *WSClient) handleSignatureNotification(msg *wsMessage) {
	var value struct {
		Err interface{} `json:"err"`
	}
	// receivedSignature notifications carry a string value; they are ignored.
	if err := json.Unmarshal(msg.Params.Result.Value, &value); err != nil {
		return
	}

	subID := msg.Params.Subscription
	c.subsMu.Lock()
	sub, ok := c.subs[subID]
	if ok {
		delete(c.subs, subID)
	}
	c.subsMu.Unlock()
	if !ok {
		return
	}

	sub.ch <- SignatureNotification{
		Signature: sub.signature,
		Slot:      msg.Params.Result.Context.Slot,
		Err:       value.Err,
	}
	close(sub.ch)
}
