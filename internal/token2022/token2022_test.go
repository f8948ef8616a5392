package token2022

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

func TestMintLen(t *testing.T) {
	n, err := MintLen()
	require.NoError(t, err)
	assert.Equal(t, MintSize, n)

	n, err = MintLen(ExtensionTransferFeeConfig, ExtensionMetadataPointer)
	require.NoError(t, err)
	// 165 + 1 + (4 + 108) + (4 + 64)
	assert.Equal(t, 346, n)

	_, err = MintLen(ExtensionTokenMetadata)
	assert.Error(t, err)
}

func TestMetadataLen(t *testing.T) {
	m := &TokenMetadata{Mint: newKey(t), Name: "Foo", Symbol: "FOO", URI: "https://x/y"}
	// 2 + 2 + 32 + 32 + (4+3) + (4+3) + (4+11) + 4
	assert.Equal(t, 101, MetadataLen(m))
}

func TestDecodeMint_WithExtensions(t *testing.T) {
	mintAddr := newKey(t)
	authority := newKey(t)
	withdraw := newKey(t)

	base := EncodeMintBase(&Mint{
		MintAuthority: &authority,
		Supply:        1_000_000,
		Decimals:      9,
		IsInitialized: true,
	})
	require.Len(t, base, MintSize)

	fee := &TransferFeeConfig{
		ConfigAuthority:   &authority,
		WithdrawAuthority: &withdraw,
		Newer:             TransferFee{FeeBasisPoints: 100, MaximumFee: 9_000_000_000},
		Older:             TransferFee{FeeBasisPoints: 100, MaximumFee: 9_000_000_000},
	}
	pointer := &MetadataPointer{Authority: &authority, MetadataAddress: &mintAddr}
	meta := &TokenMetadata{UpdateAuthority: &authority, Mint: mintAddr, Name: "Foo", Symbol: "FOO", URI: "https://x/y"}

	data := EncodeExtended(base, AccountTypeMint, []Extension{
		{Type: ExtensionMetadataPointer, Value: pointer.Encode()},
		{Type: ExtensionTransferFeeConfig, Value: fee.Encode()},
		{Type: ExtensionTokenMetadata, Value: meta.Pack()},
	})

	mint, err := DecodeMint(mintAddr, data)
	require.NoError(t, err)

	require.NotNil(t, mint.MintAuthority)
	assert.True(t, mint.MintAuthority.Equals(authority))
	assert.Nil(t, mint.FreezeAuthority)
	assert.Equal(t, uint8(9), mint.Decimals)
	assert.Equal(t, uint64(1_000_000), mint.Supply)
	assert.True(t, mint.IsInitialized)

	require.NotNil(t, mint.TransferFee)
	assert.True(t, mint.TransferFee.WithdrawAuthority.Equals(withdraw))
	assert.Equal(t, uint16(100), mint.TransferFee.Newer.FeeBasisPoints)

	require.NotNil(t, mint.MetadataPointer)
	assert.True(t, mint.MetadataPointer.MetadataAddress.Equals(mintAddr))

	require.NotNil(t, mint.Metadata)
	assert.Equal(t, "Foo", mint.Metadata.Name)
	assert.Equal(t, "FOO", mint.Metadata.Symbol)
	assert.Equal(t, "https://x/y", mint.Metadata.URI)
	assert.Empty(t, mint.Metadata.AdditionalMetadata)
}

func TestDecodeMint_LegacyLayout(t *testing.T) {
	base := EncodeMintBase(&Mint{Decimals: 6, IsInitialized: true})
	mint, err := DecodeMint(newKey(t), base)
	require.NoError(t, err)
	assert.Nil(t, mint.MintAuthority)
	assert.Nil(t, mint.TransferFee)
	assert.Nil(t, mint.Metadata)
}

func TestDecodeMint_TooShort(t *testing.T) {
	_, err := DecodeMint(newKey(t), make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestParseExtensions_Overrun(t *testing.T) {
	data := EncodeExtended(nil, AccountTypeMint, []Extension{{Type: ExtensionMetadataPointer, Value: make([]byte, 64)}})
	// Truncate inside the value.
	_, err := ParseExtensions(data[:len(data)-10])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestDecodeAccount(t *testing.T) {
	mint := newKey(t)
	owner := newKey(t)
	data := EncodeAccountBase(&Account{Mint: mint, Owner: owner, Amount: 42})
	require.Len(t, data, AccountSize)

	acc, err := DecodeAccount(data)
	require.NoError(t, err)
	assert.True(t, acc.Mint.Equals(mint))
	assert.True(t, acc.Owner.Equals(owner))
	assert.Equal(t, uint64(42), acc.Amount)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	owner := newKey(t)
	mintA := newKey(t)
	mintB := newKey(t)

	a1, err := FindAssociatedTokenAddress(owner, mintA)
	require.NoError(t, err)
	a2, err := FindAssociatedTokenAddress(owner, mintA)
	require.NoError(t, err)
	b, err := FindAssociatedTokenAddress(owner, mintB)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.False(t, solana.IsOnCurve(a1[:]), "program address must be off curve")
	assert.True(t, solana.IsOnCurve(owner[:]), "wallet key must be on curve")
}

func TestDiscriminators(t *testing.T) {
	assert.Equal(t, [8]byte{210, 225, 30, 162, 88, 184, 77, 141}, DiscriminatorInitialize)
	assert.Equal(t, [8]byte{221, 233, 49, 45, 181, 202, 220, 200}, DiscriminatorUpdateField)
}

func TestInstructionLayouts(t *testing.T) {
	mint := newKey(t)
	auth := newKey(t)

	tests := []struct {
		name    string
		build   func() (solana.Instruction, error)
		wantLen int
		prefix  []byte
	}{
		{
			name:    "metadata pointer",
			build:   func() (solana.Instruction, error) { return NewInitializeMetadataPointer(mint, auth, mint) },
			wantLen: 66,
			prefix:  []byte{39, 0},
		},
		{
			name: "transfer fee config",
			build: func() (solana.Instruction, error) {
				return NewInitializeTransferFeeConfig(mint, auth, auth, 100, 9_000_000_000)
			},
			wantLen: 78,
			prefix:  []byte{26, 0, 1},
		},
		{
			name:    "initialize mint without freeze authority",
			build:   func() (solana.Instruction, error) { return NewInitializeMint(mint, 9, auth, nil) },
			wantLen: 35,
			prefix:  []byte{0, 9},
		},
		{
			name:    "mint to",
			build:   func() (solana.Instruction, error) { return NewMintTo(mint, auth, auth, 1) },
			wantLen: 9,
			prefix:  []byte{7, 1},
		},
		{
			name:    "set transfer fee",
			build:   func() (solana.Instruction, error) { return NewSetTransferFee(mint, auth, 50, 1) },
			wantLen: 12,
			prefix:  []byte{26, 5, 50, 0},
		},
		{
			name:    "update field",
			build:   func() (solana.Instruction, error) { return NewUpdateField(mint, auth, FieldURI, "ab") },
			wantLen: 8 + 1 + 4 + 2,
			prefix:  DiscriminatorUpdateField[:],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := tt.build()
			require.NoError(t, err)
			assert.True(t, ix.ProgramID().Equals(ProgramID))

			data, err := ix.Data()
			require.NoError(t, err)
			assert.Len(t, data, tt.wantLen)
			assert.Equal(t, tt.prefix, data[:len(tt.prefix)])
		})
	}
}

func TestNewUpdateField_Accounts(t *testing.T) {
	mint := newKey(t)
	auth := newKey(t)

	ix, err := NewUpdateField(mint, auth, FieldName, "x")
	require.NoError(t, err)

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.True(t, accounts[0].IsWritable)
	assert.False(t, accounts[0].IsSigner)
	assert.True(t, accounts[1].IsSigner)
	assert.Equal(t, "uri", FieldURI.String())
}
