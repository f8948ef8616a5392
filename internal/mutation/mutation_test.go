package mutation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-console/internal/directory"
	"solana-token-console/internal/domain"
	"solana-token-console/internal/rpc"
	"solana-token-console/internal/rpc/stub"
	"solana-token-console/internal/storage/memory"
	"solana-token-console/internal/token2022"
	"solana-token-console/internal/wallet"
)

type fixture struct {
	ledger   *stub.Ledger
	activity *memory.ActivityStore
	service  *Service
	signer   *wallet.Keypair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := stub.NewLedger()
	signer, err := wallet.NewRandomKeypair()
	require.NoError(t, err)
	ledger.Fund(signer.PublicKey(), 10*solana.LAMPORTS_PER_SOL)

	var tick atomic.Int64
	activity := memory.NewActivityStore()
	svc, err := NewService(Options{
		Client:    ledger,
		Confirmer: rpc.NewConfirmer(ledger, nil).WithPollInterval(time.Millisecond),
		Activity:  activity,
		Now: func() time.Time {
			return time.UnixMilli(1_700_000_000_000 + tick.Add(1))
		},
	})
	require.NoError(t, err)

	return &fixture{ledger: ledger, activity: activity, service: svc, signer: signer}
}

func (f *fixture) mint(t *testing.T, mint solana.PublicKey) *token2022.Mint {
	t.Helper()
	data, ok := f.ledger.AccountData(mint)
	require.True(t, ok, "mint account missing")
	m, err := token2022.DecodeMint(mint, data)
	require.NoError(t, err)
	return m
}

func fee(v float64) *float64 { return &v }

func TestCreateToken_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	props := domain.TokenProperties{Name: "Console Token", Symbol: "CON", URI: "https://example.org/con.json"}

	sub, err := f.service.CreateToken(ctx, f.signer, props)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.Signature)
	assert.Equal(t, "https://explorer.solana.com/tx/"+sub.Signature+"?cluster=devnet", sub.ExplorerURL)
	assert.Equal(t, 1, f.ledger.Calls("sendTransaction"))

	m := f.mint(t, sub.Mint)
	assert.Equal(t, uint8(9), m.Decimals)
	assert.Equal(t, uint64(1_000_000_000_000_000), m.Supply)
	require.NotNil(t, m.Metadata)
	assert.Equal(t, props.Name, m.Metadata.Name)
	assert.Equal(t, props.Symbol, m.Metadata.Symbol)
	assert.Equal(t, props.URI, m.Metadata.URI)
	require.NotNil(t, m.TransferFee)
	assert.Equal(t, uint16(100), m.TransferFee.Newer.FeeBasisPoints)
	assert.Equal(t, uint64(9_000_000_000), m.TransferFee.Newer.MaximumFee)

	dir := directory.NewService(directory.Options{Client: f.ledger})
	listing, err := dir.ListAuthorityTokens(ctx, f.signer.PublicKey())
	require.NoError(t, err)
	require.Len(t, listing.Records, 1)
	rec := listing.Records[0]
	assert.Equal(t, sub.Mint, rec.Mint)
	assert.True(t, rec.Authorities.Has(domain.AuthorityMint))
	assert.True(t, rec.Authorities.Has(domain.AuthorityMetadataUpdate))
	assert.Contains(t, rec.AuthorityLabel(), "Mint")
	assert.Contains(t, rec.AuthorityLabel(), "MetadataUpdate")
	assert.Equal(t, m.Supply, rec.Balance)

	stored, err := f.activity.GetByID(ctx, sub.Activity.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityCreate, stored.Kind)
	assert.Equal(t, domain.ActivityConfirmed, stored.Status)
	assert.Equal(t, sub.Signature, stored.Signature)
}

func TestCreateToken_RejectsEmptyFieldsBeforeRPC(t *testing.T) {
	tests := []struct {
		name  string
		props domain.TokenProperties
	}{
		{"empty name", domain.TokenProperties{Symbol: "S", URI: "u"}},
		{"blank symbol", domain.TokenProperties{Name: "N", Symbol: "  ", URI: "u"}},
		{"empty uri", domain.TokenProperties{Name: "N", Symbol: "S"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.CreateToken(context.Background(), f.signer, tt.props)
			assert.ErrorIs(t, err, ErrInvalidProperties)
			assert.Equal(t, 0, f.ledger.TotalCalls())

			_, err = f.service.UpdateToken(context.Background(), f.signer, f.signer.PublicKey(), tt.props)
			assert.ErrorIs(t, err, ErrInvalidProperties)
			assert.Equal(t, 0, f.ledger.TotalCalls())
		})
	}
}

func TestCreateToken_WalletRejects(t *testing.T) {
	f := newFixture(t)
	rejecting, err := wallet.NewRandomKeypair(wallet.WithApproval(func(*solana.Transaction) bool { return false }))
	require.NoError(t, err)
	f.ledger.Fund(rejecting.PublicKey(), solana.LAMPORTS_PER_SOL)

	_, err = f.service.CreateToken(context.Background(), rejecting, domain.TokenProperties{Name: "N", Symbol: "S", URI: "u"})
	assert.ErrorIs(t, err, wallet.ErrRejected)
	assert.Equal(t, 0, f.ledger.Calls("sendTransaction"))

	acts, err := f.activity.ListByIdentity(context.Background(), rejecting.PublicKey().String(), 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityFailed, acts[0].Status)
	assert.Empty(t, acts[0].Signature)
}

func TestCreateToken_SendFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailSend(errors.New("node down"))

	_, err := f.service.CreateToken(context.Background(), f.signer, domain.TokenProperties{Name: "N", Symbol: "S", URI: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node down")
}

func TestUpdateToken_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateToken(ctx, f.signer, domain.TokenProperties{Name: "A", Symbol: "A", URI: "https://a"})
	require.NoError(t, err)

	props := domain.TokenProperties{
		Name:   "A much longer token name",
		Symbol: "LONGER",
		URI:    "https://example.org/a/much/longer/metadata.json",
	}

	_, err = f.service.UpdateToken(ctx, f.signer, created.Mint, props)
	require.NoError(t, err)
	first := f.mint(t, created.Mint)
	firstData, _ := f.ledger.AccountData(created.Mint)
	firstLamports := f.ledger.Balance(created.Mint)

	_, err = f.service.UpdateToken(ctx, f.signer, created.Mint, props)
	require.NoError(t, err)
	second := f.mint(t, created.Mint)
	secondData, _ := f.ledger.AccountData(created.Mint)

	assert.Equal(t, props.Name, first.Metadata.Name)
	assert.Equal(t, props.Symbol, first.Metadata.Symbol)
	assert.Equal(t, props.URI, first.Metadata.URI)
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.Equal(t, firstData, secondData)
	assert.Equal(t, firstLamports, f.ledger.Balance(created.Mint), "no top-up when size is unchanged")
	assert.Equal(t, stub.Rent(len(secondData)), f.ledger.Balance(created.Mint))
}

func TestUpdateToken_SetsTransferFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateToken(ctx, f.signer, domain.TokenProperties{Name: "A", Symbol: "A", URI: "https://a"})
	require.NoError(t, err)

	_, err = f.service.UpdateToken(ctx, f.signer, created.Mint, domain.TokenProperties{
		Name: "A", Symbol: "A", URI: "https://a", Fee: fee(2.5),
	})
	require.NoError(t, err)

	m := f.mint(t, created.Mint)
	assert.Equal(t, uint16(250), m.TransferFee.Newer.FeeBasisPoints)
	assert.Equal(t, uint16(100), m.TransferFee.Older.FeeBasisPoints)
}

func TestUpdateToken_FeeKeepsMaximumFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateToken(ctx, f.signer, domain.TokenProperties{Name: "A", Symbol: "A", URI: "https://a"})
	require.NoError(t, err)
	before := f.mint(t, created.Mint).TransferFee.Newer.MaximumFee
	require.Equal(t, uint64(9_000_000_000), before)

	// A console configured for other economics edits a mint it did not create.
	svc, err := NewService(Options{
		Client:    f.ledger,
		Confirmer: rpc.NewConfirmer(f.ledger, nil).WithPollInterval(time.Millisecond),
		Economics: &Economics{Decimals: 2, FeeBasisPoints: 50, MaxFee: 9, InitialSupply: 1},
	})
	require.NoError(t, err)

	_, err = svc.UpdateToken(ctx, f.signer, created.Mint, domain.TokenProperties{
		Name: "A", Symbol: "A", URI: "https://a", Fee: fee(3),
	})
	require.NoError(t, err)

	m := f.mint(t, created.Mint)
	assert.Equal(t, uint16(300), m.TransferFee.Newer.FeeBasisPoints)
	assert.Equal(t, before, m.TransferFee.Newer.MaximumFee)
	assert.Equal(t, uint8(9), m.Decimals)
}

func TestUpdateToken_FeeWithoutFeeConfig(t *testing.T) {
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	identity := f.signer.PublicKey()

	meta := (&token2022.TokenMetadata{
		UpdateAuthority: &identity,
		Mint:            mint,
		Name:            "Plain",
		Symbol:          "PLN",
		URI:             "https://example.org/plain.json",
	}).Pack()
	base := token2022.EncodeMintBase(&token2022.Mint{MintAuthority: &identity, Decimals: 6, IsInitialized: true})
	data := token2022.EncodeExtended(base, token2022.AccountTypeMint, []token2022.Extension{
		{Type: token2022.ExtensionMetadataPointer, Value: (&token2022.MetadataPointer{Authority: &identity, MetadataAddress: &mint}).Encode()},
		{Type: token2022.ExtensionTokenMetadata, Value: meta},
	})
	f.ledger.SetAccount(mint, token2022.ProgramID, stub.Rent(len(data)), data)

	_, err := f.service.UpdateToken(context.Background(), f.signer, mint, domain.TokenProperties{
		Name: "Plain", Symbol: "PLN", URI: "https://example.org/plain.json", Fee: fee(1),
	})
	assert.ErrorIs(t, err, ErrNoTransferFee)
	assert.Equal(t, 0, f.ledger.Calls("sendTransaction"))

	// Without a fee the metadata edit still goes through.
	_, err = f.service.UpdateToken(context.Background(), f.signer, mint, domain.TokenProperties{
		Name: "Renamed", Symbol: "PLN", URI: "https://example.org/plain.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", f.mint(t, mint).Metadata.Name)
}

func TestCreateToken_ConfirmTimeout(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(Options{
		Client:         f.ledger,
		Confirmer:      rpc.NewConfirmer(f.ledger, nil).WithPollInterval(time.Millisecond),
		Activity:       f.activity,
		ConfirmTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	f.ledger.HoldConfirmations(true)

	_, err = svc.CreateToken(context.Background(), f.signer, domain.TokenProperties{Name: "A", Symbol: "A", URI: "https://a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.ledger.Calls("sendTransaction"))

	acts, err := f.activity.ListByIdentity(context.Background(), f.signer.PublicKey().String(), 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityFailed, acts[0].Status)
	assert.NotEmpty(t, acts[0].Signature)

	// The transaction landed; only its confirmation was not observed.
	f.ledger.HoldConfirmations(false)
	statuses, err := f.ledger.GetSignatureStatuses(context.Background(), acts[0].Signature)
	require.NoError(t, err)
	assert.NotNil(t, statuses[0])
}

func TestUpdateToken_InvalidFee(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpdateToken(context.Background(), f.signer, f.signer.PublicKey(), domain.TokenProperties{
		Name: "A", Symbol: "A", URI: "u", Fee: fee(101),
	})
	assert.ErrorIs(t, err, ErrInvalidProperties)
	assert.Equal(t, 0, f.ledger.TotalCalls())
}

func TestUpdateToken_NotAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateToken(ctx, f.signer, domain.TokenProperties{Name: "A", Symbol: "A", URI: "https://a"})
	require.NoError(t, err)

	intruder, err := wallet.NewRandomKeypair()
	require.NoError(t, err)
	f.ledger.Fund(intruder.PublicKey(), solana.LAMPORTS_PER_SOL)

	_, err = f.service.UpdateToken(ctx, intruder, created.Mint, domain.TokenProperties{Name: "B", Symbol: "B", URI: "https://b"})
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "update authority")
	assert.Equal(t, "A", f.mint(t, created.Mint).Metadata.Name)
}

func TestEconomics(t *testing.T) {
	e := DefaultEconomics()
	require.NoError(t, e.Validate())
	assert.Equal(t, uint64(9_000_000_000), e.MaxFeeBaseUnits())
	assert.Equal(t, uint64(1_000_000_000_000_000), e.InitialSupplyBaseUnits())

	e.Decimals = 19
	assert.Error(t, e.Validate())

	e = DefaultEconomics()
	e.FeeBasisPoints = MaxBasisPoints + 1
	assert.Error(t, e.Validate())

	bps, err := BasisPoints(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), bps)

	_, err = BasisPoints(-1)
	assert.ErrorIs(t, err, ErrInvalidProperties)
}

func TestExplorerURL(t *testing.T) {
	svc, err := NewService(Options{Client: stub.NewLedger(), Cluster: "mainnet-beta"})
	require.NoError(t, err)
	assert.Equal(t, "https://explorer.solana.com/tx/abc", svc.ExplorerURL("abc"))
}
