// Package token2022 encodes and decodes the Token-2022 program state and the
// instructions the console submits: mint and token account layouts, the TLV
// extension area, the token-metadata interface and associated token accounts.
package token2022

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs.
var (
	ProgramID              = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgram = solana.SPLAssociatedTokenAccountProgramID
)

// Fixed layout sizes in bytes.
const (
	MintSize        = 82
	AccountSize     = 165
	MultisigSize    = 355
	AccountTypeSize = 1
	TypeSize        = 2
	LengthSize      = 2
)

// AccountType is the byte stored right after the base account area of an
// extended account.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = 0
	AccountTypeMint          AccountType = 1
	AccountTypeAccount       AccountType = 2
)

// ExtensionType identifies a TLV entry.
type ExtensionType uint16

// Extension types used by the console. Values follow the on-chain enum.
const (
	ExtensionUninitialized     ExtensionType = 0
	ExtensionTransferFeeConfig ExtensionType = 1
	ExtensionTransferFeeAmount ExtensionType = 2
	ExtensionImmutableOwner    ExtensionType = 7
	ExtensionMetadataPointer   ExtensionType = 18
	ExtensionTokenMetadata     ExtensionType = 19
)

// extensionLen is the fixed value length of sized extensions.
var extensionLen = map[ExtensionType]int{
	ExtensionTransferFeeConfig: 108,
	ExtensionTransferFeeAmount: 8,
	ExtensionImmutableOwner:    0,
	ExtensionMetadataPointer:   64,
}

// Token instruction tags.
const (
	InstructionInitializeMint           uint8 = 0
	InstructionMintTo                   uint8 = 7
	InstructionTransferFeeExtension     uint8 = 26
	InstructionMetadataPointerExtension uint8 = 39
)

// Transfer fee and metadata pointer sub-instructions.
const (
	TransferFeeInitializeConfig uint8 = 0
	TransferFeeSetTransferFee   uint8 = 5
	MetadataPointerInitialize   uint8 = 0
)
