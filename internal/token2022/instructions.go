package token2022

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// MetadataField selects the token-metadata field an update targets.
type MetadataField uint8

// Field variants of the token-metadata interface. Custom keys are not used.
const (
	FieldName   MetadataField = 0
	FieldSymbol MetadataField = 1
	FieldURI    MetadataField = 2
)

func (f MetadataField) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldSymbol:
		return "symbol"
	case FieldURI:
		return "uri"
	default:
		return "unknown"
	}
}

// Token-metadata interface discriminators: first 8 bytes of
// sha256("spl_token_metadata_interface:<name>").
var (
	DiscriminatorInitialize  = discriminator("initialize_account")
	DiscriminatorUpdateField = discriminator("updating_field")
)

func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("spl_token_metadata_interface:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func build(accounts solana.AccountMetaSlice, e *encoder) (solana.Instruction, error) {
	data, err := e.bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializeMetadataPointer points the mint's metadata at address.
func NewInitializeMetadataPointer(mint, authority, address solana.PublicKey) (solana.Instruction, error) {
	e := newEncoder()
	e.u8(InstructionMetadataPointerExtension)
	e.u8(MetadataPointerInitialize)
	e.pubkey(authority)
	e.pubkey(address)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
	}, e)
}

// NewInitializeTransferFeeConfig initializes the transfer fee extension.
func NewInitializeTransferFeeConfig(mint, configAuthority, withdrawAuthority solana.PublicKey, basisPoints uint16, maxFee uint64) (solana.Instruction, error) {
	e := newEncoder()
	e.u8(InstructionTransferFeeExtension)
	e.u8(TransferFeeInitializeConfig)
	e.pubkeyOption(&configAuthority)
	e.pubkeyOption(&withdrawAuthority)
	e.u16(basisPoints)
	e.u64(maxFee)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
	}, e)
}

// NewSetTransferFee schedules a new transfer fee for the mint.
func NewSetTransferFee(mint, configAuthority solana.PublicKey, basisPoints uint16, maxFee uint64) (solana.Instruction, error) {
	e := newEncoder()
	e.u8(InstructionTransferFeeExtension)
	e.u8(TransferFeeSetTransferFee)
	e.u16(basisPoints)
	e.u64(maxFee)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(configAuthority, false, true),
	}, e)
}

// NewInitializeMint initializes the base mint. freezeAuthority may be nil.
func NewInitializeMint(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) (solana.Instruction, error) {
	e := newEncoder()
	e.u8(InstructionInitializeMint)
	e.u8(decimals)
	e.pubkey(mintAuthority)
	e.pubkeyOption(freezeAuthority)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}, e)
}

// NewMintTo mints amount base units into destination.
func NewMintTo(mint, destination, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	e := newEncoder()
	e.u8(InstructionMintTo)
	e.u64(amount)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, e)
}

// NewInitializeMetadata writes the token-metadata record into the metadata
// account, which for this console is the mint itself.
func NewInitializeMetadata(metadata, updateAuthority, mint, mintAuthority solana.PublicKey, name, symbol, uri string) (solana.Instruction, error) {
	e := newEncoder()
	e.raw(DiscriminatorInitialize[:])
	e.str(name)
	e.str(symbol)
	e.str(uri)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(updateAuthority, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(mintAuthority, false, true),
	}, e)
}

// NewUpdateField replaces one metadata field.
func NewUpdateField(metadata, updateAuthority solana.PublicKey, field MetadataField, value string) (solana.Instruction, error) {
	e := newEncoder()
	e.raw(DiscriminatorUpdateField[:])
	e.u8(uint8(field))
	e.str(value)
	return build(solana.AccountMetaSlice{
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(updateAuthority, false, true),
	}, e)
}

// NewCreateAssociatedTokenAccount creates owner's associated account for a
// Token-2022 mint, funded by payer.
func NewCreateAssociatedTokenAccount(payer, associated, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(AssociatedTokenProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(associated, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(ProgramID, false, false),
	}, []byte{})
}
