// Package wallet provides keypair-backed wallets and the connection adapter
// that owns the console's authentication state.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	// ErrNotConnected is returned when no wallet session is active.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrRejected is returned when the wallet declines to sign.
	ErrRejected = errors.New("signature request rejected")
)

// Wallet is an external signer.
type Wallet interface {
	PublicKey() solana.PublicKey
	// SignTransaction adds the wallet's signature to tx and returns it.
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// ApproveFunc decides whether a signature request is granted.
type ApproveFunc func(tx *solana.Transaction) bool

// Keypair is a Wallet backed by an in-process private key.
type Keypair struct {
	key     solana.PrivateKey
	approve ApproveFunc
}

var _ Wallet = (*Keypair)(nil)

// KeypairOption configures a Keypair.
type KeypairOption func(*Keypair)

// WithApproval installs a hook that may reject signature requests.
func WithApproval(fn ApproveFunc) KeypairOption {
	return func(k *Keypair) {
		k.approve = fn
	}
}

// NewKeypair wraps key.
func NewKeypair(key solana.PrivateKey, opts ...KeypairOption) (*Keypair, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	k := &Keypair{key: key}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// NewRandomKeypair generates a fresh keypair wallet.
func NewRandomKeypair(opts ...KeypairOption) (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewKeypair(key, opts...)
}

// KeypairFromBase58 decodes a base58 64-byte secret key.
func KeypairFromBase58(secret string, opts ...KeypairOption) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	return NewKeypair(solana.PrivateKey(raw), opts...)
}

// KeypairFromFile loads a solana-keygen JSON key file.
func KeypairFromFile(path string, opts ...KeypairOption) (*Keypair, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keyfile %s: %w", path, err)
	}
	return NewKeypair(key, opts...)
}

// PublicKey implements Wallet.
func (k *Keypair) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

// SignTransaction implements Wallet.
func (k *Keypair) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k.approve != nil && !k.approve(tx) {
		return nil, ErrRejected
	}
	if err := PartialSign(tx, k.key); err != nil {
		return nil, err
	}
	return tx, nil
}

// PartialSign places key's signature in its slot among tx's required
// signers, leaving other slots untouched.
func PartialSign(tx *solana.Transaction, key solana.PrivateKey) error {
	pub := key.PublicKey()
	if !tx.IsSigner(pub) {
		return fmt.Errorf("%s is not a required signer", pub)
	}
	_, err := tx.PartialSign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	})
	return err
}
