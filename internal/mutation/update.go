package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/token2022"
	"solana-token-console/internal/wallet"
)

var (
	// ErrNoMetadata is returned when updating a mint without inline metadata.
	ErrNoMetadata = errors.New("mint has no token metadata")

	// ErrNoTransferFee is returned for a fee change on a mint without the
	// TransferFeeConfig extension.
	ErrNoTransferFee = errors.New("mint has no transfer fee config")
)

// updateOrder is the order fields are rewritten in.
var updateOrder = []token2022.MetadataField{
	token2022.FieldName,
	token2022.FieldURI,
	token2022.FieldSymbol,
}

// UpdateToken rewrites the name, uri and symbol of mint and, when
// props.Fee is set, schedules the new transfer fee with the mint's current
// maximum fee. The signer must be the
// metadata update authority (and fee config authority for a fee change).
func (s *Service) UpdateToken(ctx context.Context, signer wallet.Wallet, mint solana.PublicKey, props domain.TokenProperties) (*Submission, error) {
	if err := ValidateProperties(props); err != nil {
		return nil, err
	}
	var feeBPS *uint16
	if props.Fee != nil {
		bps, err := BasisPoints(*props.Fee)
		if err != nil {
			return nil, err
		}
		feeBPS = &bps
	}

	identity := signer.PublicKey()
	return s.submit(ctx, &submission{
		kind:   domain.ActivityUpdate,
		mint:   mint,
		signer: signer,
		build: func(ctx context.Context) ([]solana.Instruction, error) {
			return s.updateInstructions(ctx, identity, mint, props, feeBPS)
		},
	})
}

func (s *Service) updateInstructions(ctx context.Context, identity, mint solana.PublicKey, props domain.TokenProperties, feeBPS *uint16) ([]solana.Instruction, error) {
	info, err := s.client.GetAccountInfo(ctx, mint.String())
	if err != nil {
		return nil, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if info == nil {
		return nil, fmt.Errorf("mint %s not found", mint)
	}
	current, err := token2022.DecodeMint(mint, info.Data)
	if err != nil {
		return nil, err
	}
	if current.Metadata == nil {
		return nil, fmt.Errorf("%s: %w", mint, ErrNoMetadata)
	}
	if feeBPS != nil && current.TransferFee == nil {
		return nil, fmt.Errorf("%s: %w", mint, ErrNoTransferFee)
	}

	values := map[token2022.MetadataField]string{
		token2022.FieldName:   props.Name,
		token2022.FieldSymbol: props.Symbol,
		token2022.FieldURI:    props.URI,
	}

	// Each update resizes the account, so rent must cover the largest
	// intermediate size, not only the final one.
	meta := *current.Metadata
	baseLen := len(info.Data) - len(meta.Pack())
	peak := len(info.Data)
	var updates []solana.Instruction
	for _, field := range updateOrder {
		setField(&meta, field, values[field])
		if n := baseLen + len(meta.Pack()); n > peak {
			peak = n
		}
		ix, err := token2022.NewUpdateField(mint, identity, field, values[field])
		if err != nil {
			return nil, fmt.Errorf("build update %s: %w", field, err)
		}
		updates = append(updates, ix)
	}

	var instructions []solana.Instruction
	if peak > len(info.Data) {
		required, err := s.client.GetMinimumBalanceForRentExemption(ctx, peak)
		if err != nil {
			return nil, fmt.Errorf("get rent exemption: %w", err)
		}
		if required > info.Lamports {
			instructions = append(instructions, system.NewTransferInstruction(required-info.Lamports, identity, mint).Build())
		}
	}
	instructions = append(instructions, updates...)

	// The fee cap stays whatever the mint already has.
	if feeBPS != nil {
		ix, err := token2022.NewSetTransferFee(mint, identity, *feeBPS, current.TransferFee.Newer.MaximumFee)
		if err != nil {
			return nil, fmt.Errorf("build set transfer fee: %w", err)
		}
		instructions = append(instructions, ix)
	}
	return instructions, nil
}

func setField(m *token2022.TokenMetadata, field token2022.MetadataField, value string) {
	switch field {
	case token2022.FieldName:
		m.Name = value
	case token2022.FieldSymbol:
		m.Symbol = value
	case token2022.FieldURI:
		m.URI = value
	}
}
