package escrow

import (
	"fmt"
	"math/big"

	"escrowd/crypto"
)

// Status represents the lifecycle states supported by the escrow engine.
type Status uint8

const (
	StatusFunded Status = iota + 1
	StatusDelivered
	StatusDisputed
	StatusCompleted
	StatusCancelled
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusFunded, StatusDelivered, StatusDisputed, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusFunded:
		return "funded"
	case StatusDelivered:
		return "delivered"
	case StatusDisputed:
		return "disputed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Escrow captures the parties, deposit and runtime status of a single escrow
// agreement. Ids are sequential from 1 and never reused; Amount, ArbiterFee,
// Deadline and the parties are fixed for the record's lifetime.
type Escrow struct {
	ID          uint64
	Buyer       crypto.Address
	Seller      crypto.Address
	Arbiter     crypto.Address
	Amount      *big.Int
	ArbiterFee  *big.Int
	Deadline    int64
	CreatedAt   int64
	Description string
	Status      Status

	SellerApproved bool
	BuyerApproved  bool
	// ArbiterDecision is only meaningful once ArbiterDecided is set; true
	// means the arbiter ruled for the buyer.
	ArbiterDecided  bool
	ArbiterDecision bool
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.ArbiterFee != nil {
		clone.ArbiterFee = new(big.Int).Set(e.ArbiterFee)
	} else {
		clone.ArbiterFee = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates the supplied record and returns a cloned instance
// with non-nil amount fields. The original value is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow id must be allocated")
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow amount must be positive")
	}
	if clone.ArbiterFee.Sign() < 0 {
		return nil, fmt.Errorf("escrow arbiter fee must be non-negative")
	}
	if clone.Deadline <= 0 {
		return nil, fmt.Errorf("escrow deadline must be set")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}
