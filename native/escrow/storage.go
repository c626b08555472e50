package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowd/crypto"
	"escrowd/storage"
)

var (
	keyEscrowSeq       = []byte("escrow:seq")
	keyEscrowRecPrefix = []byte("escrow:rec:")
	keyUserIdxPrefix   = []byte("escrow:user:")
)

// storedEscrow is the RLP wire form of a record. Timestamps are persisted as
// unsigned seconds because RLP has no signed integer encoding.
type storedEscrow struct {
	ID              uint64
	Buyer           [crypto.AddressLength]byte
	Seller          [crypto.AddressLength]byte
	Arbiter         [crypto.AddressLength]byte
	Amount          *big.Int
	ArbiterFee      *big.Int
	Deadline        uint64
	CreatedAt       uint64
	Description     string
	Status          uint8
	SellerApproved  bool
	BuyerApproved   bool
	ArbiterDecided  bool
	ArbiterDecision bool
}

func toStored(e *Escrow) *storedEscrow {
	return &storedEscrow{
		ID:              e.ID,
		Buyer:           e.Buyer,
		Seller:          e.Seller,
		Arbiter:         e.Arbiter,
		Amount:          e.Amount,
		ArbiterFee:      e.ArbiterFee,
		Deadline:        uint64(e.Deadline),
		CreatedAt:       uint64(e.CreatedAt),
		Description:     e.Description,
		Status:          uint8(e.Status),
		SellerApproved:  e.SellerApproved,
		BuyerApproved:   e.BuyerApproved,
		ArbiterDecided:  e.ArbiterDecided,
		ArbiterDecision: e.ArbiterDecision,
	}
}

func fromStored(s *storedEscrow) *Escrow {
	return &Escrow{
		ID:              s.ID,
		Buyer:           s.Buyer,
		Seller:          s.Seller,
		Arbiter:         s.Arbiter,
		Amount:          s.Amount,
		ArbiterFee:      s.ArbiterFee,
		Deadline:        int64(s.Deadline),
		CreatedAt:       int64(s.CreatedAt),
		Description:     s.Description,
		Status:          Status(s.Status),
		SellerApproved:  s.SellerApproved,
		BuyerApproved:   s.BuyerApproved,
		ArbiterDecided:  s.ArbiterDecided,
		ArbiterDecision: s.ArbiterDecision,
	}
}

func recordKey(id uint64) []byte {
	key := make([]byte, len(keyEscrowRecPrefix)+8)
	copy(key, keyEscrowRecPrefix)
	binary.BigEndian.PutUint64(key[len(keyEscrowRecPrefix):], id)
	return key
}

func userIndexKey(addr crypto.Address) []byte {
	return append(append([]byte{}, keyUserIdxPrefix...), addr[:]...)
}

// Store persists escrow records and the participant index in the KV database
// and owns sequential id allocation. Records are never deleted.
type Store struct {
	allocMu sync.Mutex
	indexMu sync.Mutex
	db      storage.Database
}

// NewStore creates a record store over a KV database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Allocate reserves the next sequential escrow id, starting at 1.
func (s *Store) Allocate() (uint64, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	count, err := s.Count()
	if err != nil {
		return 0, err
	}
	next := count + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.Put(keyEscrowSeq, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// Count returns the total number of escrows ever created.
func (s *Store) Count() (uint64, error) {
	raw, err := s.db.Get(keyEscrowSeq)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("escrow store: corrupt sequence value")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Put validates and persists a record.
func (s *Store) Put(e *Escrow) error {
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(toStored(sanitized))
	if err != nil {
		return fmt.Errorf("escrow store: encode record %d: %w", sanitized.ID, err)
	}
	return s.db.Put(recordKey(sanitized.ID), raw)
}

// Get loads a record by id. The second return value reports existence.
func (s *Store) Get(id uint64) (*Escrow, bool, error) {
	raw, err := s.db.Get(recordKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	stored := new(storedEscrow)
	if err := rlp.DecodeBytes(raw, stored); err != nil {
		return nil, false, fmt.Errorf("escrow store: decode record %d: %w", id, err)
	}
	return fromStored(stored), true, nil
}

// IndexParticipant appends the id to the address's escrow list. Called once
// per role at creation time; the index is never retroactively updated.
func (s *Store) IndexParticipant(addr crypto.Address, id uint64) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	ids, err := s.userEscrows(addr)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	raw, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return fmt.Errorf("escrow store: encode index for %s: %w", addr, err)
	}
	return s.db.Put(userIndexKey(addr), raw)
}

// UserEscrows returns the ids, in creation order, in which the address
// appears as buyer, seller or arbiter.
func (s *Store) UserEscrows(addr crypto.Address) ([]uint64, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.userEscrows(addr)
}

func (s *Store) userEscrows(addr crypto.Address) ([]uint64, error) {
	raw, err := s.db.Get(userIndexKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []uint64{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil, fmt.Errorf("escrow store: decode index for %s: %w", addr, err)
	}
	return ids, nil
}
