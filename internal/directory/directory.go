// Package directory lists the Token-2022 tokens an identity administers.
package directory

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/rpc"
	"solana-token-console/internal/token2022"
)

// DefaultConcurrency bounds how many token accounts resolve at once.
const DefaultConcurrency = 8

// Failure is one token account that could not be resolved.
type Failure struct {
	Account solana.PublicKey
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Account, f.Err)
}

// Listing is the result of one directory fetch.
type Listing struct {
	Records  []*domain.TokenRecord // in the order the node returned the accounts
	Failures []Failure
}

// Service resolves token accounts into authority records.
type Service struct {
	client      rpc.Client
	concurrency int
	logger      *log.Logger
	metrics     *observability.Metrics
}

// Options configures a Service.
type Options struct {
	Client      rpc.Client
	Concurrency int // Default: DefaultConcurrency
	Logger      *log.Logger
	Metrics     *observability.Metrics
}

// NewService creates a directory service.
func NewService(opts Options) *Service {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[directory] ", log.LstdFlags)
	}

	return &Service{
		client:      opts.Client,
		concurrency: concurrency,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// ListAuthorityTokens returns every Token-2022 account owned by identity
// whose mint names identity in at least one authority slot. Accounts that
// fail to resolve are reported in Failures and do not abort the listing.
// Only a failure to enumerate the accounts is returned as an error.
func (s *Service) ListAuthorityTokens(ctx context.Context, identity solana.PublicKey) (*Listing, error) {
	start := time.Now()

	accounts, err := s.client.GetTokenAccountsByOwner(ctx, identity.String(), token2022.ProgramID.String())
	if err != nil {
		s.metrics.RecordRefresh("error", 0, 0, time.Since(start))
		return nil, fmt.Errorf("list token accounts of %s: %w", identity, err)
	}

	var epoch uint64
	if len(accounts) > 0 {
		info, err := s.client.GetEpochInfo(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			s.metrics.RecordRefresh("error", 0, 0, time.Since(start))
			return nil, fmt.Errorf("get epoch info: %w", err)
		}
		epoch = info.Epoch
	}

	type result struct {
		record *domain.TokenRecord
		err    error
	}
	results := make([]result, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, keyed := range accounts {
		i, keyed := i, keyed
		g.Go(func() error {
			rec, err := s.resolve(gctx, identity, epoch, keyed)
			results[i] = result{record: rec, err: err}
			// Per-account errors stay in results so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	listing := &Listing{}
	for i, r := range results {
		if r.err != nil {
			pk, _ := solana.PublicKeyFromBase58(accounts[i].Pubkey)
			listing.Failures = append(listing.Failures, Failure{Account: pk, Err: r.err})
			continue
		}
		if r.record != nil {
			listing.Records = append(listing.Records, r.record)
		}
	}

	if err := ctx.Err(); err != nil {
		s.metrics.RecordRefresh("cancelled", len(listing.Records), len(listing.Failures), time.Since(start))
		return nil, err
	}

	status := "ok"
	if len(listing.Failures) > 0 {
		status = "partial"
		for _, f := range listing.Failures {
			s.logger.Printf("resolve %s: %v", f.Account, f.Err)
		}
	}
	s.metrics.RecordRefresh(status, len(listing.Records), len(listing.Failures), time.Since(start))

	return listing, nil
}

// resolve returns nil, nil when identity holds no authority over the mint.
func (s *Service) resolve(ctx context.Context, identity solana.PublicKey, epoch uint64, keyed rpc.KeyedAccount) (*domain.TokenRecord, error) {
	accountKey, err := solana.PublicKeyFromBase58(keyed.Pubkey)
	if err != nil {
		return nil, fmt.Errorf("parse account address: %w", err)
	}
	tokenAccount, err := token2022.DecodeAccount(keyed.Account.Data)
	if err != nil {
		return nil, err
	}

	mint, err := s.fetchMint(ctx, tokenAccount.Mint)
	if err != nil {
		return nil, err
	}

	metadata, err := s.metadataFor(ctx, mint)
	if err != nil {
		return nil, err
	}

	var held domain.AuthoritySet
	if matches(mint.MintAuthority, identity) {
		held = held.With(domain.AuthorityMint)
	}
	if metadata != nil && matches(metadata.UpdateAuthority, identity) {
		held = held.With(domain.AuthorityMetadataUpdate)
	}
	if mint.TransferFee != nil {
		if matches(mint.TransferFee.ConfigAuthority, identity) {
			held = held.With(domain.AuthorityFeeConfigUpdate)
		}
		if matches(mint.TransferFee.WithdrawAuthority, identity) {
			held = held.With(domain.AuthorityFeeWithdraw)
		}
	}
	if held.Empty() {
		return nil, nil
	}

	rec := &domain.TokenRecord{
		Account:     accountKey,
		Mint:        mint.Address,
		Balance:     tokenAccount.Amount,
		Decimals:    mint.Decimals,
		Supply:      mint.Supply,
		Authorities: held,
	}
	if metadata != nil {
		rec.Metadata = &domain.TokenMetadata{
			Name:            metadata.Name,
			Symbol:          metadata.Symbol,
			URI:             metadata.URI,
			UpdateAuthority: metadata.UpdateAuthority,
		}
	}
	if mint.TransferFee != nil {
		rec.TransferFee, rec.PendingFee = feesAt(mint.TransferFee, epoch)
	}
	return rec, nil
}

// feesAt splits a fee config into the fee in effect at epoch and the
// scheduled one, if it has not started yet.
func feesAt(cfg *token2022.TransferFeeConfig, epoch uint64) (current, pending *domain.TransferFee) {
	convert := func(f token2022.TransferFee) *domain.TransferFee {
		return &domain.TransferFee{Epoch: f.Epoch, BasisPoints: f.FeeBasisPoints, MaximumFee: f.MaximumFee}
	}
	if epoch >= cfg.Newer.Epoch {
		return convert(cfg.Newer), nil
	}
	return convert(cfg.Older), convert(cfg.Newer)
}

func (s *Service) fetchMint(ctx context.Context, address solana.PublicKey) (*token2022.Mint, error) {
	info, err := s.client.GetAccountInfo(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("fetch mint %s: %w", address, err)
	}
	if info == nil {
		return nil, fmt.Errorf("mint %s not found", address)
	}
	if info.Owner != token2022.ProgramID.String() {
		return nil, fmt.Errorf("mint %s owned by %s", address, info.Owner)
	}
	return token2022.DecodeMint(address, info.Data)
}

// metadataFor follows the mint's metadata pointer. A pointer to the mint
// itself reads the inline TokenMetadata extension.
func (s *Service) metadataFor(ctx context.Context, mint *token2022.Mint) (*token2022.TokenMetadata, error) {
	if mint.MetadataPointer == nil || mint.MetadataPointer.MetadataAddress == nil {
		return mint.Metadata, nil
	}
	target := *mint.MetadataPointer.MetadataAddress
	if target.Equals(mint.Address) {
		return mint.Metadata, nil
	}

	info, err := s.client.GetAccountInfo(ctx, target.String())
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", target, err)
	}
	if info == nil {
		return nil, nil
	}
	exts, err := token2022.ParseExtensions(info.Data)
	if err != nil {
		return nil, err
	}
	for _, ext := range exts {
		if ext.Type == token2022.ExtensionTokenMetadata {
			return token2022.DecodeTokenMetadata(ext.Value)
		}
	}
	return nil, nil
}

func matches(authority *solana.PublicKey, identity solana.PublicKey) bool {
	return authority != nil && authority.Equals(identity)
}
