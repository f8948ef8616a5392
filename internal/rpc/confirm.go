package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransactionFailed is returned when a transaction landed with an error.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrBlockhashExpired is returned when the blockhash a transaction was
	// built with expired before the transaction was seen.
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")
)

// DefaultPollInterval is how often Confirm polls signature statuses.
const DefaultPollInterval = 500 * time.Millisecond

// Confirmer waits for a submitted transaction to reach a commitment level.
// It polls getSignatureStatuses and, when a SignatureSubscriber is set,
// polls again as soon as the subscription fires.
type Confirmer struct {
	client       Client
	subscriber   SignatureSubscriber
	pollInterval time.Duration
}

// NewConfirmer creates a Confirmer. subscriber may be nil.
func NewConfirmer(client Client, subscriber SignatureSubscriber) *Confirmer {
	return &Confirmer{
		client:       client,
		subscriber:   subscriber,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval returns c with a different poll interval.
func (c *Confirmer) WithPollInterval(d time.Duration) *Confirmer {
	c.pollInterval = d
	return c
}

// Confirm blocks until signature reaches commitment, lands with an error,
// its blockhash expires, or ctx ends.
func (c *Confirmer) Confirm(ctx context.Context, signature string, blockhash *Blockhash, commitment Commitment) error {
	var wake <-chan SignatureNotification
	if c.subscriber != nil {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// Subscription failure only loses the early wake-up.
		if ch, err := c.subscriber.SubscribeSignature(subCtx, signature, commitment); err == nil {
			wake = ch
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.check(ctx, signature, blockhash, commitment)
		if done || err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case n, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if n.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, n.Err)
			}
			wake = nil
		}
	}
}

// check performs one status lookup. It returns done=true once the
// signature satisfies commitment.
func (c *Confirmer) check(ctx context.Context, signature string, blockhash *Blockhash, commitment Commitment) (bool, error) {
	statuses, err := c.client.GetSignatureStatuses(ctx, signature)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Transient; try again next tick.
		return false, nil
	}

	if len(statuses) > 0 && statuses[0] != nil {
		st := statuses[0]
		if st.Err != nil {
			return false, fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
		}
		if st.ConfirmationStatus.Satisfies(commitment) {
			return true, nil
		}
		return false, nil
	}

	if blockhash == nil {
		return false, nil
	}
	height, err := c.client.GetBlockHeight(ctx, CommitmentConfirmed)
	if err != nil {
		return false, nil
	}
	if height > blockhash.LastValidBlockHeight {
		return false, ErrBlockhashExpired
	}
	return false, nil
}
