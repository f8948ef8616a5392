package mutation

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/token2022"
	"solana-token-console/internal/wallet"
)

// mintExtensions are allocated up front; TokenMetadata grows the account
// when it is initialized.
var mintExtensions = []token2022.ExtensionType{
	token2022.ExtensionTransferFeeConfig,
	token2022.ExtensionMetadataPointer,
}

// CreateToken creates a Token-2022 mint with transfer fee and inline
// metadata, and mints the initial supply to the signer's associated
// account, in one transaction. The signer holds every authority.
func (s *Service) CreateToken(ctx context.Context, signer wallet.Wallet, props domain.TokenProperties) (*Submission, error) {
	if err := ValidateProperties(props); err != nil {
		return nil, err
	}

	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate mint key: %w", err)
	}
	identity := signer.PublicKey()
	mint := mintKey.PublicKey()

	return s.submit(ctx, &submission{
		kind:      domain.ActivityCreate,
		mint:      mint,
		signer:    signer,
		cosigners: []solana.PrivateKey{mintKey},
		build: func(ctx context.Context) ([]solana.Instruction, error) {
			return s.createInstructions(ctx, identity, mint, props)
		},
	})
}

func (s *Service) createInstructions(ctx context.Context, identity, mint solana.PublicKey, props domain.TokenProperties) ([]solana.Instruction, error) {
	mintLen, err := token2022.MintLen(mintExtensions...)
	if err != nil {
		return nil, err
	}
	metadataLen := token2022.MetadataLen(&token2022.TokenMetadata{
		UpdateAuthority: &identity,
		Mint:            mint,
		Name:            props.Name,
		Symbol:          props.Symbol,
		URI:             props.URI,
	})

	lamports, err := s.client.GetMinimumBalanceForRentExemption(ctx, mintLen+metadataLen)
	if err != nil {
		return nil, fmt.Errorf("get rent exemption: %w", err)
	}

	ata, err := token2022.FindAssociatedTokenAddress(identity, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated account: %w", err)
	}

	e := s.economics
	instructions := []solana.Instruction{
		system.NewCreateAccountInstruction(lamports, uint64(mintLen), token2022.ProgramID, identity, mint).Build(),
	}

	builders := []func() (solana.Instruction, error){
		func() (solana.Instruction, error) {
			return token2022.NewInitializeMetadataPointer(mint, identity, mint)
		},
		func() (solana.Instruction, error) {
			return token2022.NewInitializeTransferFeeConfig(mint, identity, identity, e.FeeBasisPoints, e.MaxFeeBaseUnits())
		},
		func() (solana.Instruction, error) {
			return token2022.NewInitializeMint(mint, e.Decimals, identity, nil)
		},
		func() (solana.Instruction, error) {
			return token2022.NewInitializeMetadata(mint, identity, mint, identity, props.Name, props.Symbol, props.URI)
		},
		func() (solana.Instruction, error) {
			return token2022.NewCreateAssociatedTokenAccount(identity, ata, identity, mint), nil
		},
		func() (solana.Instruction, error) {
			return token2022.NewMintTo(mint, ata, identity, e.InitialSupplyBaseUnits())
		},
	}
	for _, build := range builders {
		ix, err := build()
		if err != nil {
			return nil, fmt.Errorf("build instruction: %w", err)
		}
		instructions = append(instructions, ix)
	}
	return instructions, nil
}
