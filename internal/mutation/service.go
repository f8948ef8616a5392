// Package mutation builds, signs and submits the transactions that create
// and edit Token-2022 mints.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/idhash"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/rpc"
	"solana-token-console/internal/storage"
	"solana-token-console/internal/wallet"
)

// ErrInvalidProperties is returned before any network call when the
// submitted form is incomplete.
var ErrInvalidProperties = errors.New("invalid token properties")

// DefaultConfirmTimeout bounds how long a submission waits for confirmation.
const DefaultConfirmTimeout = 90 * time.Second

// Submission is the outcome of a confirmed mutation.
type Submission struct {
	Mint        solana.PublicKey
	Signature   string
	ExplorerURL string
	Activity    *domain.Activity
}

// Service submits token mutations on behalf of a connected wallet.
type Service struct {
	client         rpc.Client
	confirmer      *rpc.Confirmer
	activity       storage.ActivityStore
	economics      Economics
	cluster        string
	confirmTimeout time.Duration
	now            func() time.Time
	logger         *log.Logger
	metrics        *observability.Metrics
}

// Options configures a Service.
type Options struct {
	Client         rpc.Client
	Confirmer      *rpc.Confirmer        // Default: polling confirmer over Client
	Activity       storage.ActivityStore // optional
	Economics      *Economics            // Default: DefaultEconomics()
	Cluster        string                // explorer cluster, Default: devnet
	ConfirmTimeout time.Duration         // Default: DefaultConfirmTimeout
	Now            func() time.Time
	Logger         *log.Logger
	Metrics        *observability.Metrics
}

// NewService creates a mutation service.
func NewService(opts Options) (*Service, error) {
	if opts.Client == nil {
		return nil, errors.New("mutation: rpc client required")
	}

	economics := DefaultEconomics()
	if opts.Economics != nil {
		economics = *opts.Economics
	}
	if err := economics.Validate(); err != nil {
		return nil, fmt.Errorf("mutation: %w", err)
	}

	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = rpc.NewConfirmer(opts.Client, nil)
	}

	cluster := opts.Cluster
	if cluster == "" {
		cluster = "devnet"
	}

	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout == 0 {
		confirmTimeout = DefaultConfirmTimeout
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[mutation] ", log.LstdFlags)
	}

	return &Service{
		client:         opts.Client,
		confirmer:      confirmer,
		activity:       opts.Activity,
		economics:      economics,
		cluster:        cluster,
		confirmTimeout: confirmTimeout,
		now:            now,
		logger:         logger,
		metrics:        opts.Metrics,
	}, nil
}

// Economics returns the parameters new tokens are created with.
func (s *Service) Economics() Economics {
	return s.economics
}

// ExplorerURL links a transaction signature on the configured cluster.
func (s *Service) ExplorerURL(signature string) string {
	if s.cluster == "mainnet-beta" {
		return fmt.Sprintf("https://explorer.solana.com/tx/%s", signature)
	}
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", signature, s.cluster)
}

// ValidateProperties enforces the required form fields.
func ValidateProperties(props domain.TokenProperties) error {
	var missing []string
	if strings.TrimSpace(props.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(props.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if strings.TrimSpace(props.URI) == "" {
		missing = append(missing, "uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidProperties, strings.Join(missing, ", "))
	}
	return nil
}

// submission carries one transaction through sign, send and confirm.
type submission struct {
	kind      domain.ActivityKind
	mint      solana.PublicKey
	signer    wallet.Wallet
	cosigners []solana.PrivateKey
	build     func(ctx context.Context) ([]solana.Instruction, error)
	signature string
	submitted time.Time
	createdAt time.Time
}

// submit builds the instructions, signs with the cosigners and then the
// wallet, sends once, and waits for confirmed commitment. The outcome is
// recorded as an activity whether or not it succeeded.
func (s *Service) submit(ctx context.Context, sub *submission) (*Submission, error) {
	sub.createdAt = s.now()
	err := s.run(ctx, sub)

	status := "confirmed"
	if err != nil {
		status = "failed"
	}
	var latency time.Duration
	if !sub.submitted.IsZero() {
		latency = time.Since(sub.submitted)
	}
	s.metrics.RecordTransaction(string(sub.kind), status, latency)

	act := s.record(sub, err)
	if err != nil {
		s.logger.Printf("%s %s failed: %v", sub.kind, sub.mint, err)
		return nil, err
	}
	s.logger.Printf("%s %s confirmed: %s", sub.kind, sub.mint, sub.signature)

	return &Submission{
		Mint:        sub.mint,
		Signature:   sub.signature,
		ExplorerURL: s.ExplorerURL(sub.signature),
		Activity:    act,
	}, nil
}

func (s *Service) run(ctx context.Context, sub *submission) error {
	instructions, err := sub.build(ctx)
	if err != nil {
		return err
	}

	latest, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("get latest blockhash: %w", err)
	}
	blockhash, err := solana.HashFromBase58(latest.Blockhash)
	if err != nil {
		return fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(sub.signer.PublicKey()))
	if err != nil {
		return fmt.Errorf("build transaction: %w", err)
	}
	for _, key := range sub.cosigners {
		if err := wallet.PartialSign(tx, key); err != nil {
			return fmt.Errorf("co-sign: %w", err)
		}
	}
	signed, err := sub.signer.SignTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("wallet sign: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	sub.signature, err = s.client.SendTransaction(ctx, raw)
	if err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	sub.submitted = time.Now()

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	if err := s.confirmer.Confirm(confirmCtx, sub.signature, latest, rpc.CommitmentConfirmed); err != nil {
		return fmt.Errorf("confirm %s: %w", sub.signature, err)
	}
	return nil
}

// record stores the activity. Store errors are logged, not returned: the
// transaction outcome stands regardless.
func (s *Service) record(sub *submission, runErr error) *domain.Activity {
	identity := sub.signer.PublicKey().String()
	mint := sub.mint.String()
	createdAt := sub.createdAt.UnixMilli()

	act := &domain.Activity{
		ID:        idhash.ComputeActivityID(sub.kind, mint, identity, createdAt),
		Kind:      sub.kind,
		Mint:      mint,
		Identity:  identity,
		Signature: sub.signature,
		Status:    domain.ActivityConfirmed,
		CreatedAt: createdAt,
	}
	if sub.signature != "" {
		act.ExplorerURL = s.ExplorerURL(sub.signature)
	}
	if runErr != nil {
		act.Status = domain.ActivityFailed
		act.Error = runErr.Error()
	}

	if s.activity != nil {
		// Detached from the request context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.activity.Insert(ctx, act); err != nil {
			s.logger.Printf("record activity %s: %v", act.ID, err)
		}
	}
	return act
}
