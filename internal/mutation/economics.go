package mutation

import (
	"fmt"
	"math"
)

// Economics are the fixed parameters of newly created tokens.
type Economics struct {
	Decimals       uint8
	FeeBasisPoints uint16 // transfer fee, 100 = 1%
	MaxFee         uint64 // whole tokens
	InitialSupply  uint64 // whole tokens, minted to the creator
}

// DefaultEconomics returns 9 decimals, a 1% fee capped at 9 tokens and a
// supply of one million tokens.
func DefaultEconomics() Economics {
	return Economics{
		Decimals:       9,
		FeeBasisPoints: 100,
		MaxFee:         9,
		InitialSupply:  1_000_000,
	}
}

// Validate rejects values the token program or uint64 math cannot carry.
func (e Economics) Validate() error {
	if e.Decimals > 18 {
		return fmt.Errorf("decimals %d out of range", e.Decimals)
	}
	if e.FeeBasisPoints > MaxBasisPoints {
		return fmt.Errorf("fee %d bps exceeds %d", e.FeeBasisPoints, MaxBasisPoints)
	}
	unit := e.unit()
	if e.MaxFee > math.MaxUint64/unit {
		return fmt.Errorf("max fee %d overflows at %d decimals", e.MaxFee, e.Decimals)
	}
	if e.InitialSupply > math.MaxUint64/unit {
		return fmt.Errorf("initial supply %d overflows at %d decimals", e.InitialSupply, e.Decimals)
	}
	return nil
}

// MaxFeeBaseUnits is MaxFee in the mint's smallest unit.
func (e Economics) MaxFeeBaseUnits() uint64 {
	return e.MaxFee * e.unit()
}

// InitialSupplyBaseUnits is InitialSupply in the mint's smallest unit.
func (e Economics) InitialSupplyBaseUnits() uint64 {
	return e.InitialSupply * e.unit()
}

func (e Economics) unit() uint64 {
	u := uint64(1)
	for i := uint8(0); i < e.Decimals; i++ {
		u *= 10
	}
	return u
}

// MaxBasisPoints is a 100% transfer fee.
const MaxBasisPoints = 10_000

// BasisPoints converts a fee percentage (1 = 1%) to basis points.
func BasisPoints(percent float64) (uint16, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: fee %v%% outside 0..100", ErrInvalidProperties, percent)
	}
	return uint16(math.Round(percent * 100)), nil
}
