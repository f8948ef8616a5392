package console

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/auth"
	"solana-token-console/internal/directory"
	"solana-token-console/internal/domain"
	"solana-token-console/internal/observability"
)

// ErrNotAuthenticated is returned when a fetch is requested without a
// connected wallet.
var ErrNotAuthenticated = errors.New("wallet not connected")

// Lister is the directory operation the page needs.
type Lister interface {
	ListAuthorityTokens(ctx context.Context, identity solana.PublicKey) (*directory.Listing, error)
}

// Page is the token list model. It follows the authentication state: a
// connect starts a fetch, a disconnect cancels any fetch in flight and
// clears the list. A listing is applied only if the generation it was
// started under is still current.
type Page struct {
	ctx     context.Context
	state   *auth.State
	lister  Lister
	logger  *log.Logger
	metrics *observability.Metrics

	wg sync.WaitGroup

	mu       sync.Mutex
	cycle    uint64
	cancel   context.CancelFunc
	loading  bool
	tokens   []*domain.TokenRecord
	failures []directory.Failure
	banner   string
}

// PageView is a copy of the page state for rendering.
type PageView struct {
	Snapshot auth.Snapshot
	Loading  bool
	Tokens   []*domain.TokenRecord
	Failures []directory.Failure
	Banner   string
}

// NewPage creates a page bound to state. Fetches run under ctx.
func NewPage(ctx context.Context, state *auth.State, lister Lister, logger *log.Logger, metrics *observability.Metrics) *Page {
	p := &Page{
		ctx:     ctx,
		state:   state,
		lister:  lister,
		logger:  logger,
		metrics: metrics,
	}
	state.Subscribe(p.onAuthChange)
	return p
}

func (p *Page) onAuthChange(snap auth.Snapshot) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.cycle++
	p.tokens = nil
	p.failures = nil
	p.banner = ""
	p.loading = false
	p.mu.Unlock()

	if !snap.Authenticated {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Refresh(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Printf("refresh after connect: %v", err)
		}
	}()
}

// Wait blocks until fetches started by authentication changes finish.
func (p *Page) Wait() {
	p.wg.Wait()
}

// Refresh fetches the listing for the current identity. It supersedes any
// fetch in flight. Nothing is fetched while unauthenticated.
func (p *Page) Refresh(ctx context.Context) error {
	snap := p.state.Snapshot()
	if !snap.Authenticated {
		return ErrNotAuthenticated
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cycle++
	cycle := p.cycle
	p.cancel = cancel
	p.loading = true
	p.mu.Unlock()

	listing, err := p.lister.ListAuthorityTokens(cycleCtx, snap.Identity)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cycle != p.cycle || !p.state.Snapshot().Current(snap.Generation) {
		p.metrics.RecordStaleResult()
		return context.Canceled
	}
	p.cancel = nil
	p.loading = false
	if err != nil {
		p.banner = "Failed to load tokens: " + err.Error()
		return err
	}

	p.tokens = listing.Records
	p.failures = listing.Failures
	p.banner = ""
	if n := len(listing.Failures); n > 0 {
		p.banner = pluralize(n, "token could not be loaded", "tokens could not be loaded")
	}
	return nil
}

// Find returns the listed record for mint.
func (p *Page) Find(mint solana.PublicKey) (*domain.TokenRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range p.tokens {
		if rec.Mint.Equals(mint) {
			return rec, true
		}
	}
	return nil, false
}

// SetBanner shows msg in the error banner. An empty msg hides it.
func (p *Page) SetBanner(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banner = msg
}

// View returns the current state.
func (p *Page) View() PageView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PageView{
		Snapshot: p.state.Snapshot(),
		Loading:  p.loading,
		Tokens:   append([]*domain.TokenRecord(nil), p.tokens...),
		Failures: append([]directory.Failure(nil), p.failures...),
		Banner:   p.banner,
	}
}
