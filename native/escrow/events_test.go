package escrow

import (
	"math/big"
	"testing"
)

func testEventEscrow() *Escrow {
	return &Escrow{
		ID:          12,
		Buyer:       newTestAddress(0x0B),
		Seller:      newTestAddress(0x0C),
		Arbiter:     newTestAddress(0x0D),
		Amount:      big.NewInt(1_000_000),
		ArbiterFee:  big.NewInt(50_000),
		Deadline:    1_700_003_600,
		CreatedAt:   1_700_000_000,
		Description: "api integration sprint",
		Status:      StatusFunded,
	}
}

func TestCreatedEventAttributes(t *testing.T) {
	esc := testEventEscrow()
	evt := NewCreatedEvent(esc)
	if evt.Type != EventTypeEscrowCreated {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	attrs := evt.Attributes
	if attrs["id"] != "12" {
		t.Fatalf("id attribute: %q", attrs["id"])
	}
	if attrs["buyer"] != esc.Buyer.String() || attrs["seller"] != esc.Seller.String() || attrs["arbiter"] != esc.Arbiter.String() {
		t.Fatal("party attributes missing")
	}
	if attrs["amount"] != "1000000" {
		t.Fatalf("amount attribute: %q", attrs["amount"])
	}
	if attrs["description"] != esc.Description {
		t.Fatalf("description attribute: %q", attrs["description"])
	}
}

func TestPayoutEventAttributes(t *testing.T) {
	esc := testEventEscrow()
	completed := NewCompletedEvent(esc, esc.Seller, big.NewInt(990_000))
	if completed.Attributes["recipient"] != esc.Seller.String() || completed.Attributes["amount"] != "990000" {
		t.Fatalf("completed attributes: %v", completed.Attributes)
	}
	refunded := NewRefundedEvent(esc, esc.Buyer, big.NewInt(940_000))
	if refunded.Attributes["recipient"] != esc.Buyer.String() || refunded.Attributes["amount"] != "940000" {
		t.Fatalf("refunded attributes: %v", refunded.Attributes)
	}
	resolved := NewResolvedEvent(esc, esc.Buyer, big.NewInt(940_000))
	if resolved.Attributes["winner"] != esc.Buyer.String() {
		t.Fatalf("resolved attributes: %v", resolved.Attributes)
	}
}

func TestEventsTolerateNilRecord(t *testing.T) {
	for _, evt := range []string{
		NewCreatedEvent(nil).Type,
		NewFundedEvent(nil).Type,
		NewDeliveredEvent(nil).Type,
		NewDisputedEvent(nil).Type,
		NewCancelledEvent(nil).Type,
	} {
		if evt == "" {
			t.Fatal("event type must survive nil record")
		}
	}
}
