package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthoritySet_Label(t *testing.T) {
	tests := []struct {
		name string
		set  AuthoritySet
		want string
	}{
		{"empty", 0, ""},
		{"single", AuthoritySet(0).With(AuthorityFeeConfigUpdate), "FeeConfigUpdate"},
		{
			"insertion order does not matter",
			AuthoritySet(0).With(AuthorityMetadataUpdate).With(AuthorityMint),
			"Mint,MetadataUpdate",
		},
		{
			"all",
			AuthoritySet(0).With(AuthorityFeeWithdraw).With(AuthorityFeeConfigUpdate).With(AuthorityMetadataUpdate).With(AuthorityMint),
			"Mint,MetadataUpdate,FeeConfigUpdate,FeeWithdrawAuthority",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Label())
			assert.Equal(t, tt.want == "", tt.set.Empty())
		})
	}
}

func TestTransferFee_Percent(t *testing.T) {
	assert.Equal(t, 1.0, TransferFee{BasisPoints: 100}.Percent())
	assert.Equal(t, 0.25, TransferFee{BasisPoints: 25}.Percent())
}
