package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-token-console/internal/domain"
)

// ComputeActivityID computes a deterministic activity id using SHA256.
// Formula: SHA256(kind|mint|identity|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeActivityID(kind domain.ActivityKind, mint, identity string, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		string(kind),
		mint,
		identity,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
