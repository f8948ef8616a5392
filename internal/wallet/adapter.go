package wallet

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/auth"
	"solana-token-console/internal/observability"
)

// Adapter tracks the connected wallet. It is the only writer of the
// authentication state it was built with.
type Adapter struct {
	writer  *auth.Writer
	logger  *log.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	current Wallet
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithMetrics publishes session transitions to m.
func WithMetrics(m *observability.Metrics) AdapterOption {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// NewAdapter creates an Adapter that owns writer.
func NewAdapter(writer *auth.Writer, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		writer: writer,
		logger: log.New(os.Stdout, "[wallet] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the authentication state the adapter writes.
func (a *Adapter) State() *auth.State {
	return a.writer.State()
}

// Connect starts a session for w, replacing any current one.
func (a *Adapter) Connect(w Wallet) {
	a.mu.Lock()
	a.current = w
	a.mu.Unlock()

	a.publish(true, w.PublicKey())
	a.logger.Printf("connected %s", w.PublicKey())
}

// Disconnect ends the session. It is a no-op when nothing is connected.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	was := a.current
	a.current = nil
	a.mu.Unlock()

	if was == nil {
		return
	}
	a.publish(false, solana.PublicKey{})
	a.logger.Printf("disconnected %s", was.PublicKey())
}

func (a *Adapter) publish(connected bool, identity solana.PublicKey) {
	a.writer.Set(connected, identity)
	a.metrics.SetSession(connected, a.writer.State().Generation())
}

// Signer returns a Wallet bound to the current session. Signing through it
// fails with ErrNotConnected once that session has ended.
func (a *Adapter) Signer() (Wallet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, ErrNotConnected
	}
	return &sessionSigner{
		adapter:    a,
		wallet:     a.current,
		generation: a.writer.State().Generation(),
	}, nil
}

type sessionSigner struct {
	adapter    *Adapter
	wallet     Wallet
	generation uint64
}

func (s *sessionSigner) PublicKey() solana.PublicKey {
	return s.wallet.PublicKey()
}

func (s *sessionSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if s.adapter.State().Generation() != s.generation {
		return nil, ErrNotConnected
	}
	return s.wallet.SignTransaction(ctx, tx)
}
