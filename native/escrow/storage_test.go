package escrow

import (
	"math/big"
	"testing"

	"escrowd/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewStore(db)
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	esc := &Escrow{
		ID:              7,
		Buyer:           newTestAddress(0x01),
		Seller:          newTestAddress(0x02),
		Arbiter:         newTestAddress(0x03),
		Amount:          big.NewInt(1_000_000),
		ArbiterFee:      big.NewInt(25_000),
		Deadline:        1_700_003_600,
		CreatedAt:       1_700_000_000,
		Description:     "logo redesign, final delivery",
		Status:          StatusDisputed,
		SellerApproved:  true,
		ArbiterDecided:  true,
		ArbiterDecision: true,
	}
	if err := store.Put(esc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := store.Get(7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if got.ID != esc.ID || got.Buyer != esc.Buyer || got.Seller != esc.Seller || got.Arbiter != esc.Arbiter {
		t.Fatal("identity fields do not round-trip")
	}
	if got.Amount.Cmp(esc.Amount) != 0 || got.ArbiterFee.Cmp(esc.ArbiterFee) != 0 {
		t.Fatal("amount fields do not round-trip")
	}
	if got.Deadline != esc.Deadline || got.CreatedAt != esc.CreatedAt {
		t.Fatal("timestamps do not round-trip")
	}
	if got.Description != esc.Description || got.Status != esc.Status {
		t.Fatal("description/status do not round-trip")
	}
	if !got.SellerApproved || got.BuyerApproved || !got.ArbiterDecided || !got.ArbiterDecision {
		t.Fatal("flags do not round-trip")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.Get(99)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing record")
	}
}

func TestStorePutRejectsInvalidRecord(t *testing.T) {
	store := newTestStore(t)
	esc := &Escrow{ID: 1, Amount: big.NewInt(0), Deadline: 1, Status: StatusFunded}
	if err := store.Put(esc); err == nil {
		t.Fatal("expected sanitize failure for zero amount")
	}
	esc = &Escrow{ID: 0, Amount: big.NewInt(1), Deadline: 1, Status: StatusFunded}
	if err := store.Put(esc); err == nil {
		t.Fatal("expected sanitize failure for unallocated id")
	}
}

func TestAllocateIsSequential(t *testing.T) {
	store := newTestStore(t)
	for want := uint64(1); want <= 5; want++ {
		id, err := store.Allocate()
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
}

func TestParticipantIndexPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	addr := newTestAddress(0x0A)
	for _, id := range []uint64{3, 1, 8} {
		if err := store.IndexParticipant(addr, id); err != nil {
			t.Fatalf("index: %v", err)
		}
	}
	ids, err := store.UserEscrows(addr)
	if err != nil {
		t.Fatalf("user escrows: %v", err)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 8 {
		t.Fatalf("expected [3 1 8], got %v", ids)
	}

	other, err := store.UserEscrows(newTestAddress(0x0B))
	if err != nil {
		t.Fatalf("user escrows: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty index, got %v", other)
	}
}
