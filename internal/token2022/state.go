package token2022

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidAccountData is returned when account bytes do not match the expected layout.
var ErrInvalidAccountData = errors.New("invalid account data")

// Mint is the decoded base mint plus the extensions the console reads.
type Mint struct {
	Address         solana.PublicKey
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey

	TransferFee     *TransferFeeConfig
	MetadataPointer *MetadataPointer
	Metadata        *TokenMetadata
}

// Account is the base token account layout.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// TransferFee is one epoch-scoped fee setting.
type TransferFee struct {
	Epoch          uint64
	MaximumFee     uint64
	FeeBasisPoints uint16
}

// TransferFeeConfig is the TransferFeeConfig mint extension.
type TransferFeeConfig struct {
	ConfigAuthority   *solana.PublicKey
	WithdrawAuthority *solana.PublicKey
	WithheldAmount    uint64
	Older             TransferFee
	Newer             TransferFee
}

// MetadataPointer is the MetadataPointer mint extension.
type MetadataPointer struct {
	Authority       *solana.PublicKey
	MetadataAddress *solana.PublicKey
}

// TokenMetadata is the token-metadata interface record stored as a TLV entry.
type TokenMetadata struct {
	UpdateAuthority    *solana.PublicKey
	Mint               solana.PublicKey
	Name               string
	Symbol             string
	URI                string
	AdditionalMetadata [][2]string
}

// Extension is one raw TLV entry.
type Extension struct {
	Type  ExtensionType
	Value []byte
}

// DecodeAccount decodes the base token account fields.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) < AccountSize {
		return nil, fmt.Errorf("%w: token account is %d bytes", ErrInvalidAccountData, len(data))
	}
	d := newDecoder(data)
	acc := &Account{
		Mint:   d.pubkey(),
		Owner:  d.pubkey(),
		Amount: d.u64(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode token account: %w", d.err)
	}
	return acc, nil
}

// DecodeMint decodes a mint account together with its extensions.
func DecodeMint(address solana.PublicKey, data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint is %d bytes", ErrInvalidAccountData, len(data))
	}
	d := newDecoder(data[:MintSize])
	m := &Mint{Address: address}
	m.MintAuthority = d.statePubkeyOption()
	m.Supply = d.u64()
	m.Decimals = d.u8()
	m.IsInitialized = d.u8() == 1
	m.FreezeAuthority = d.statePubkeyOption()
	if d.err != nil {
		return nil, fmt.Errorf("decode mint: %w", d.err)
	}

	exts, err := ParseExtensions(data)
	if err != nil {
		return nil, err
	}
	for _, ext := range exts {
		switch ext.Type {
		case ExtensionTransferFeeConfig:
			if m.TransferFee, err = decodeTransferFeeConfig(ext.Value); err != nil {
				return nil, err
			}
		case ExtensionMetadataPointer:
			if m.MetadataPointer, err = decodeMetadataPointer(ext.Value); err != nil {
				return nil, err
			}
		case ExtensionTokenMetadata:
			if m.Metadata, err = DecodeTokenMetadata(ext.Value); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ParseExtensions returns the TLV entries of an extended account in stored
// order. Accounts without an extension area yield no entries.
func ParseExtensions(data []byte) ([]Extension, error) {
	if len(data) <= AccountSize {
		return nil, nil
	}
	var exts []Extension
	off := AccountSize + AccountTypeSize
	for off+TypeSize+LengthSize <= len(data) {
		d := newDecoder(data[off : off+TypeSize+LengthSize])
		typ := ExtensionType(d.u16())
		n := int(d.u16())
		if typ == ExtensionUninitialized {
			break
		}
		start := off + TypeSize + LengthSize
		if start+n > len(data) {
			return nil, fmt.Errorf("%w: extension %d overruns account", ErrInvalidAccountData, typ)
		}
		exts = append(exts, Extension{Type: typ, Value: data[start : start+n]})
		off = start + n
	}
	return exts, nil
}

// EncodeExtended lays out base, the account type byte and TLV entries.
// base is padded to AccountSize.
func EncodeExtended(base []byte, accountType AccountType, exts []Extension) []byte {
	out := make([]byte, AccountSize, AccountSize+AccountTypeSize+64)
	copy(out, base)
	out = append(out, byte(accountType))
	for _, ext := range exts {
		e := newEncoder()
		e.u16(uint16(ext.Type))
		e.u16(uint16(len(ext.Value)))
		hdr, _ := e.bytes()
		out = append(out, hdr...)
		out = append(out, ext.Value...)
	}
	return out
}

func decodeTransferFeeConfig(v []byte) (*TransferFeeConfig, error) {
	d := newDecoder(v)
	cfg := &TransferFeeConfig{
		ConfigAuthority:   d.optionalNonZero(),
		WithdrawAuthority: d.optionalNonZero(),
		WithheldAmount:    d.u64(),
		Older:             TransferFee{Epoch: d.u64(), MaximumFee: d.u64(), FeeBasisPoints: d.u16()},
	}
	cfg.Newer = TransferFee{Epoch: d.u64(), MaximumFee: d.u64(), FeeBasisPoints: d.u16()}
	if d.err != nil {
		return nil, fmt.Errorf("decode transfer fee config: %w", d.err)
	}
	return cfg, nil
}

// Encode packs the extension value.
func (c *TransferFeeConfig) Encode() []byte {
	e := newEncoder()
	e.pubkey(keyOrZero(c.ConfigAuthority))
	e.pubkey(keyOrZero(c.WithdrawAuthority))
	e.u64(c.WithheldAmount)
	for _, fee := range []TransferFee{c.Older, c.Newer} {
		e.u64(fee.Epoch)
		e.u64(fee.MaximumFee)
		e.u16(fee.FeeBasisPoints)
	}
	out, _ := e.bytes()
	return out
}

func decodeMetadataPointer(v []byte) (*MetadataPointer, error) {
	d := newDecoder(v)
	p := &MetadataPointer{
		Authority:       d.optionalNonZero(),
		MetadataAddress: d.optionalNonZero(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode metadata pointer: %w", d.err)
	}
	return p, nil
}

// Encode packs the extension value.
func (p *MetadataPointer) Encode() []byte {
	e := newEncoder()
	e.pubkey(keyOrZero(p.Authority))
	e.pubkey(keyOrZero(p.MetadataAddress))
	out, _ := e.bytes()
	return out
}

// DecodeTokenMetadata decodes a packed TokenMetadata value.
func DecodeTokenMetadata(v []byte) (*TokenMetadata, error) {
	d := newDecoder(v)
	m := &TokenMetadata{
		UpdateAuthority: d.optionalNonZero(),
		Mint:            d.pubkey(),
		Name:            d.str(),
		Symbol:          d.str(),
		URI:             d.str(),
	}
	n := d.u32()
	for i := uint32(0); i < n && d.err == nil; i++ {
		m.AdditionalMetadata = append(m.AdditionalMetadata, [2]string{d.str(), d.str()})
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode token metadata: %w", d.err)
	}
	return m, nil
}

// Pack serializes the metadata the way it is stored in the TLV entry.
func (m *TokenMetadata) Pack() []byte {
	e := newEncoder()
	e.pubkey(keyOrZero(m.UpdateAuthority))
	e.pubkey(m.Mint)
	e.str(m.Name)
	e.str(m.Symbol)
	e.str(m.URI)
	e.u32(uint32(len(m.AdditionalMetadata)))
	for _, kv := range m.AdditionalMetadata {
		e.str(kv[0])
		e.str(kv[1])
	}
	out, _ := e.bytes()
	return out
}

// EncodeMintBase packs the 82-byte base mint.
func EncodeMintBase(m *Mint) []byte {
	e := newEncoder()
	e.statePubkeyOption(m.MintAuthority)
	e.u64(m.Supply)
	e.u8(m.Decimals)
	if m.IsInitialized {
		e.u8(1)
	} else {
		e.u8(0)
	}
	e.statePubkeyOption(m.FreezeAuthority)
	out, _ := e.bytes()
	return out
}

// EncodeAccountBase packs the 165-byte base token account in the
// initialized state with no delegate, native or close authority.
func EncodeAccountBase(a *Account) []byte {
	e := newEncoder()
	e.pubkey(a.Mint)
	e.pubkey(a.Owner)
	e.u64(a.Amount)
	e.statePubkeyOption(nil)
	e.u8(1)
	e.u32(0)
	e.u64(0)
	e.u64(0)
	e.statePubkeyOption(nil)
	out, _ := e.bytes()
	return out
}

func keyOrZero(pk *solana.PublicKey) solana.PublicKey {
	if pk == nil {
		return solana.PublicKey{}
	}
	return *pk
}
