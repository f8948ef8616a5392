package token2022

import (
	"github.com/gagliardetto/solana-go"
)

// FindAssociatedTokenAddress returns the canonical token account of owner for
// mint under the Token-2022 program. solana.FindAssociatedTokenAddress only
// covers the legacy token program.
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], ProgramID[:], mint[:]},
		AssociatedTokenProgram,
	)
	return addr, err
}
