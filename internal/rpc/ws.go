package rpc

import "context"

// SignatureSubscriber pushes a one-shot notification when a transaction
// reaches the requested commitment.
type SignatureSubscriber interface {
	// SubscribeSignature returns a channel that receives at most one
	// notification and is then closed. The channel is also closed when the
	// connection drops or the client is closed.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the payload of a signatureNotification message.
type SignatureNotification struct {
	Signature string
	Slot      uint64
	Err       interface{}
}
