package domain

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// TokenProperties is the user-editable form state of a token.
type TokenProperties struct {
	Name   string
	Symbol string
	URI    string
	Fee    *float64 // transfer fee in percent (1 = 1%), nil when not edited
}

// Authority is one administrative role over a Token-2022 mint.
type Authority int

// Authorities in display order.
const (
	AuthorityMint Authority = iota
	AuthorityMetadataUpdate
	AuthorityFeeConfigUpdate
	AuthorityFeeWithdraw
)

// AllAuthorities lists every role in label order.
var AllAuthorities = []Authority{
	AuthorityMint,
	AuthorityMetadataUpdate,
	AuthorityFeeConfigUpdate,
	AuthorityFeeWithdraw,
}

func (a Authority) String() string {
	switch a {
	case AuthorityMint:
		return "Mint"
	case AuthorityMetadataUpdate:
		return "MetadataUpdate"
	case AuthorityFeeConfigUpdate:
		return "FeeConfigUpdate"
	case AuthorityFeeWithdraw:
		return "FeeWithdrawAuthority"
	default:
		return "Unknown"
	}
}

// AuthoritySet is a bitset of held authorities.
type AuthoritySet uint8

// With returns s with a added.
func (s AuthoritySet) With(a Authority) AuthoritySet {
	return s | 1<<uint(a)
}

// Has reports whether a is in s.
func (s AuthoritySet) Has(a Authority) bool {
	return s&(1<<uint(a)) != 0
}

// Empty reports whether no authority is held.
func (s AuthoritySet) Empty() bool {
	return s == 0
}

// Label joins held authorities with commas in the fixed display order.
func (s AuthoritySet) Label() string {
	parts := make([]string, 0, len(AllAuthorities))
	for _, a := range AllAuthorities {
		if s.Has(a) {
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, ",")
}

// TokenMetadata is the on-chain name, symbol and uri of a mint.
type TokenMetadata struct {
	Name            string
	Symbol          string
	URI             string
	UpdateAuthority *solana.PublicKey
}

// TransferFee is a transfer fee setting and the epoch it applies from.
type TransferFee struct {
	Epoch       uint64
	BasisPoints uint16
	MaximumFee  uint64 // base units
}

// Percent converts basis points to a percentage.
func (f TransferFee) Percent() float64 {
	return float64(f.BasisPoints) / 100
}

// TokenRecord is one row of the authority directory. Recomputed per fetch.
type TokenRecord struct {
	Account     solana.PublicKey // token account owned by the identity
	Mint        solana.PublicKey
	Balance     uint64 // base units held in Account
	Decimals    uint8
	Supply      uint64
	Metadata    *TokenMetadata // nil when the mint carries none
	TransferFee *TransferFee   // fee charged now; nil without a TransferFeeConfig extension
	PendingFee  *TransferFee   // scheduled fee not yet in effect
	Authorities AuthoritySet
}

// LatestFee is the most recently set fee: the pending one if any.
func (r *TokenRecord) LatestFee() *TransferFee {
	if r.PendingFee != nil {
		return r.PendingFee
	}
	return r.TransferFee
}

// AuthorityLabel is the comma-joined list of held authorities.
func (r *TokenRecord) AuthorityLabel() string {
	return r.Authorities.Label()
}
