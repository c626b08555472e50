package escrow

import "math/big"

const (
	// FeeDenominator converts basis points into a fraction: 100 bps = 1%.
	FeeDenominator = 10_000
	// DefaultPlatformFeeBps is the fee applied until the owner changes it.
	DefaultPlatformFeeBps uint32 = 100
	// MaxPlatformFeeBps is the hard ceiling on the platform fee (10%).
	MaxPlatformFeeBps uint32 = 1_000
	// MaxArbiterFeeBps caps the arbiter fee relative to the deposit. The cap
	// is a policy constant: half the deposit.
	MaxArbiterFeeBps uint32 = 5_000
)

// PlatformFee computes floor(amount * bps / 10000). The result is always
// non-negative and never exceeds amount for bps <= FeeDenominator.
func PlatformFee(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(FeeDenominator))
}

// MaxArbiterFee returns the largest arbiter fee permitted for a deposit.
func MaxArbiterFee(amount *big.Int) *big.Int {
	return PlatformFee(amount, MaxArbiterFeeBps)
}

// SplitApproval divides the deposit for a buyer-approved completion:
// the seller receives amount - platformFee. The two parts always sum to
// amount exactly.
func SplitApproval(amount *big.Int, bps uint32) (sellerAmount, platformFee *big.Int) {
	platformFee = PlatformFee(amount, bps)
	sellerAmount = new(big.Int).Sub(amount, platformFee)
	return sellerAmount, platformFee
}

// SplitResolution divides the deposit for an arbiter-resolved dispute: the
// winning party receives amount - platformFee - arbiterFee. The three parts
// always sum to amount exactly; the principal is never negative given the
// platform and arbiter fee caps.
func SplitResolution(amount, arbiterFee *big.Int, bps uint32) (principal, platformFee *big.Int) {
	platformFee = PlatformFee(amount, bps)
	if arbiterFee == nil {
		arbiterFee = big.NewInt(0)
	}
	principal = new(big.Int).Sub(amount, platformFee)
	principal.Sub(principal, arbiterFee)
	return principal, platformFee
}
