// Package rpc talks to a Solana cluster over JSON-RPC 2.0 (HTTP) and
// WebSocket subscriptions, and confirms submitted transactions.
package rpc

import "context"

// Client defines the Solana RPC HTTP surface used by the console.
type Client interface {
	// GetAccountInfo retrieves an account. Returns nil, nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenAccountsByOwner lists token accounts of owner under programID.
	GetTokenAccountsByOwner(ctx context.Context, owner, programID string) ([]KeyedAccount, error)

	// GetMinimumBalanceForRentExemption returns lamports needed for size bytes.
	GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash and its expiry height.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*Blockhash, error)

	// GetEpochInfo returns the current epoch.
	GetEpochInfo(ctx context.Context, commitment Commitment) (*EpochInfo, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// SendTransaction submits a signed wire-format transaction and returns its
	// signature. It is attempted once.
	SendTransaction(ctx context.Context, raw []byte) (string, error)

	// GetSignatureStatuses returns one entry per signature, nil when unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}
