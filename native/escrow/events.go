package escrow

import (
	"math/big"
	"strconv"

	"escrowd/core/types"
	"escrowd/crypto"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowDelivered = "escrow.delivered"
	EventTypeEscrowCompleted = "escrow.completed"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowResolved  = "escrow.resolved"
	EventTypeEscrowRefunded  = "escrow.refunded"
	EventTypeEscrowCancelled = "escrow.cancelled"
)

func baseAttrs(e *Escrow) map[string]string {
	attrs := make(map[string]string)
	if e == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(e.ID, 10)
	return attrs
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent returns the canonical payload for a newly created escrow.
func NewCreatedEvent(e *Escrow) *types.Event {
	attrs := baseAttrs(e)
	if e != nil {
		attrs["buyer"] = e.Buyer.String()
		attrs["seller"] = e.Seller.String()
		attrs["arbiter"] = e.Arbiter.String()
		attrs["amount"] = amountString(e.Amount)
		attrs["description"] = e.Description
	}
	return &types.Event{Type: EventTypeEscrowCreated, Attributes: attrs}
}

// NewFundedEvent returns the payload emitted when the deposit enters custody.
func NewFundedEvent(e *Escrow) *types.Event {
	attrs := baseAttrs(e)
	if e != nil {
		attrs["buyer"] = e.Buyer.String()
		attrs["amount"] = amountString(e.Amount)
	}
	return &types.Event{Type: EventTypeEscrowFunded, Attributes: attrs}
}

// NewDeliveredEvent returns the payload emitted when the seller marks
// delivery.
func NewDeliveredEvent(e *Escrow) *types.Event {
	attrs := baseAttrs(e)
	if e != nil {
		attrs["seller"] = e.Seller.String()
	}
	return &types.Event{Type: EventTypeEscrowDelivered, Attributes: attrs}
}

// NewCompletedEvent returns the payload emitted when the principal payout
// goes to the recipient on a completion.
func NewCompletedEvent(e *Escrow, recipient crypto.Address, amount *big.Int) *types.Event {
	attrs := baseAttrs(e)
	attrs["recipient"] = recipient.String()
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeEscrowCompleted, Attributes: attrs}
}

// NewDisputedEvent returns the payload emitted when the buyer opens a
// dispute.
func NewDisputedEvent(e *Escrow) *types.Event {
	attrs := baseAttrs(e)
	if e != nil {
		attrs["buyer"] = e.Buyer.String()
	}
	return &types.Event{Type: EventTypeEscrowDisputed, Attributes: attrs}
}

// NewResolvedEvent returns the payload emitted after an arbiter decision,
// naming the winning party and its payout.
func NewResolvedEvent(e *Escrow, winner crypto.Address, amount *big.Int) *types.Event {
	attrs := baseAttrs(e)
	attrs["winner"] = winner.String()
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeEscrowResolved, Attributes: attrs}
}

// NewRefundedEvent returns the payload emitted when value returns to the
// buyer, either through an arbiter ruling or a post-deadline cancellation.
func NewRefundedEvent(e *Escrow, recipient crypto.Address, amount *big.Int) *types.Event {
	attrs := baseAttrs(e)
	attrs["recipient"] = recipient.String()
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeEscrowRefunded, Attributes: attrs}
}

// NewCancelledEvent returns the payload emitted when the buyer cancels an
// undelivered escrow past its deadline.
func NewCancelledEvent(e *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowCancelled, Attributes: baseAttrs(e)}
}
