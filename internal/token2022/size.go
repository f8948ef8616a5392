package token2022

import "fmt"

// MintLen returns the account size of a mint carrying the given sized
// extensions. Variable-length extensions such as TokenMetadata are added by
// the program on initialization and are not part of this figure.
func MintLen(exts ...ExtensionType) (int, error) {
	if len(exts) == 0 {
		return MintSize, nil
	}
	n := AccountSize + AccountTypeSize
	for _, ext := range exts {
		l, ok := extensionLen[ext]
		if !ok {
			return 0, fmt.Errorf("extension %d has no fixed length", ext)
		}
		n += TypeSize + LengthSize + l
	}
	// An extended account must never be mistaken for a multisig.
	if n == MultisigSize {
		n += TypeSize
	}
	return n, nil
}

// MetadataLen returns the TLV bytes needed to store m.
func MetadataLen(m *TokenMetadata) int {
	return TypeSize + LengthSize + len(m.Pack())
}
