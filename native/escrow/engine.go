package escrow

import (
	"math/big"
	"time"

	"escrowd/core/events"
	"escrowd/core/types"
	"escrowd/crypto"
	"escrowd/ledger"
)

// Ledger is the value-transfer primitive the engine settles against. Apply is
// all-or-nothing: either every leg moves or none does.
type Ledger interface {
	Vault() crypto.Address
	Apply(transfers ...ledger.Transfer) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine is the escrow lifecycle state machine. It validates every call
// against caller role, record status and time, mutates the record, appends
// events and issues value transfers as the final step of each operation.
// Records are mutated and persisted before any transfer is issued; a failed
// transfer rolls the record back before the per-id lock is released.
type Engine struct {
	store    *Store
	ledger   Ledger
	platform *Platform
	emitter  events.Emitter
	locks    *lockTable
	nowFn    func() int64
}

// NewEngine wires the state machine with its record store, settlement ledger
// and platform configuration. Events are discarded until SetEmitter is
// called.
func NewEngine(store *Store, l Ledger, platform *Platform) *Engine {
	return &Engine{
		store:    store,
		ledger:   l,
		platform: platform,
		emitter:  events.NoopEmitter{},
		locks:    newLockTable(),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Platform exposes the injected configuration for admin surfaces.
func (e *Engine) Platform() *Platform { return e.platform }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) feePolicy() (FeePolicy, error) {
	if e == nil || e.platform == nil {
		return FeePolicy{}, errNilPlatform
	}
	return e.platform.FeePolicy(), nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	esc, ok, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

// settle persists the mutated record, then issues the payout set. If the
// transfer fails the prior record state is restored so no partial effect
// survives the operation.
func (e *Engine) settle(mutated, prior *Escrow, legs ...ledger.Transfer) error {
	if e.ledger == nil {
		return errNilLedger
	}
	if err := e.store.Put(mutated); err != nil {
		return err
	}
	if err := e.ledger.Apply(legs...); err != nil {
		if putErr := e.store.Put(prior); putErr != nil {
			return transferError(putErr)
		}
		return transferError(err)
	}
	return nil
}

// Create validates the parties, fee and deadline, takes custody of the
// deposit and persists a new FUNDED record. Creation and funding are one
// atomic step; there is no unfunded escrow.
func (e *Engine) Create(buyer, seller, arbiter crypto.Address, arbiterFee *big.Int, deadline int64, description string, amount *big.Int) (*Escrow, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if e.platform == nil {
		return nil, errNilPlatform
	}
	if e.platform.Paused() {
		return nil, ErrPaused
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, validationError("escrow: amount must be positive")
	}
	if buyer.IsZero() {
		return nil, validationError("escrow: buyer address required")
	}
	if seller.IsZero() {
		return nil, validationError("escrow: seller address required")
	}
	if arbiter.IsZero() {
		return nil, validationError("escrow: arbiter address required")
	}
	if buyer == seller || buyer == arbiter || seller == arbiter {
		return nil, validationError("escrow: buyer, seller and arbiter must be distinct")
	}
	now := e.now()
	if deadline <= now {
		return nil, validationError("escrow: delivery deadline must be in the future")
	}
	fee := cloneBigInt(arbiterFee)
	if fee.Sign() < 0 {
		return nil, validationError("escrow: arbiter fee must be non-negative")
	}
	if fee.Cmp(MaxArbiterFee(amt)) > 0 {
		return nil, validationError("escrow: arbiter fee exceeds maximum fraction of amount")
	}

	// Custody first: the deposit must accompany the call. The id is only
	// allocated once the buyer's funds are secured, keeping the sequence
	// gap-free. If anything after custody fails the deposit is returned, so
	// the vault never holds value without a record reaching it.
	if err := e.ledger.Apply(ledger.Transfer{From: buyer, To: e.ledger.Vault(), Amount: amt}); err != nil {
		return nil, transferError(err)
	}
	refundDeposit := func(cause error) error {
		if rbErr := e.ledger.Apply(ledger.Transfer{From: e.ledger.Vault(), To: buyer, Amount: amt}); rbErr != nil {
			return transferError(rbErr)
		}
		return cause
	}
	id, err := e.store.Allocate()
	if err != nil {
		return nil, refundDeposit(err)
	}
	esc := &Escrow{
		ID:          id,
		Buyer:       buyer,
		Seller:      seller,
		Arbiter:     arbiter,
		Amount:      amt,
		ArbiterFee:  fee,
		Deadline:    deadline,
		CreatedAt:   now,
		Description: description,
		Status:      StatusFunded,
	}
	if err := e.store.Put(esc); err != nil {
		return nil, refundDeposit(err)
	}
	for _, participant := range []crypto.Address{buyer, seller, arbiter} {
		if err := e.store.IndexParticipant(participant, id); err != nil {
			return nil, refundDeposit(err)
		}
	}
	e.emit(NewCreatedEvent(esc))
	e.emit(NewFundedEvent(esc))
	return esc.Clone(), nil
}

// MarkDelivered records that the seller delivered within the deadline and
// moves the record to DELIVERED.
func (e *Engine) MarkDelivered(id uint64, caller crypto.Address) error {
	lock := e.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Seller {
		return unauthorizedError("escrow: only the seller may mark delivery")
	}
	if esc.Status != StatusFunded {
		return stateError("escrow: cannot mark delivered in status %s", esc.Status)
	}
	if e.now() > esc.Deadline {
		return ErrDeliveryDeadlinePassed
	}
	esc.SellerApproved = true
	esc.Status = StatusDelivered
	if err := e.store.Put(esc); err != nil {
		return err
	}
	e.emit(NewDeliveredEvent(esc))
	return nil
}

// Approve completes the escrow on buyer acceptance: the seller receives the
// deposit minus the platform fee computed at the live rate.
func (e *Engine) Approve(id uint64, caller crypto.Address) error {
	lock := e.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return unauthorizedError("escrow: only the buyer may approve")
	}
	if esc.Status != StatusDelivered {
		return stateError("escrow: cannot approve in status %s", esc.Status)
	}
	policy, err := e.feePolicy()
	if err != nil {
		return err
	}
	sellerAmount, platformFee := SplitApproval(esc.Amount, policy.FeeBps)

	prior := esc.Clone()
	esc.BuyerApproved = true
	esc.Status = StatusCompleted
	vault := e.ledger.Vault()
	err = e.settle(esc, prior,
		ledger.Transfer{From: vault, To: esc.Seller, Amount: sellerAmount},
		ledger.Transfer{From: vault, To: policy.Recipient, Amount: platformFee},
	)
	if err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc, esc.Seller, sellerAmount))
	return nil
}

// Dispute lets the buyer contest a delivered escrow, handing the decision to
// the arbiter.
func (e *Engine) Dispute(id uint64, caller crypto.Address) error {
	lock := e.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return unauthorizedError("escrow: only the buyer may open a dispute")
	}
	if esc.Status != StatusDelivered {
		return stateError("escrow: cannot dispute in status %s", esc.Status)
	}
	esc.Status = StatusDisputed
	if err := e.store.Put(esc); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(esc))
	return nil
}

// Resolve settles a disputed escrow according to the arbiter's ruling. The
// arbiter always receives the fee fixed at creation; the platform fee is
// computed at the live rate; the remainder goes to the winning party.
func (e *Engine) Resolve(id uint64, favorBuyer bool, caller crypto.Address) error {
	lock := e.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Arbiter {
		return unauthorizedError("escrow: only the arbiter may resolve a dispute")
	}
	if esc.Status != StatusDisputed {
		return stateError("escrow: cannot resolve in status %s", esc.Status)
	}
	policy, err := e.feePolicy()
	if err != nil {
		return err
	}
	principal, platformFee := SplitResolution(esc.Amount, esc.ArbiterFee, policy.FeeBps)

	prior := esc.Clone()
	esc.ArbiterDecided = true
	esc.ArbiterDecision = favorBuyer
	winner := esc.Seller
	if favorBuyer {
		winner = esc.Buyer
		esc.Status = StatusRefunded
	} else {
		esc.Status = StatusCompleted
	}
	vault := e.ledger.Vault()
	err = e.settle(esc, prior,
		ledger.Transfer{From: vault, To: winner, Amount: principal},
		ledger.Transfer{From: vault, To: esc.Arbiter, Amount: esc.ArbiterFee},
		ledger.Transfer{From: vault, To: policy.Recipient, Amount: platformFee},
	)
	if err != nil {
		return err
	}
	if favorBuyer {
		e.emit(NewRefundedEvent(esc, esc.Buyer, principal))
	} else {
		e.emit(NewCompletedEvent(esc, esc.Seller, principal))
	}
	e.emit(NewResolvedEvent(esc, winner, principal))
	return nil
}

// Cancel refunds the buyer when the seller never delivered and the deadline
// has passed. The guard is deliberately a single combined condition: callers
// cannot distinguish a wrong status from an unexpired deadline.
func (e *Engine) Cancel(id uint64, caller crypto.Address) error {
	lock := e.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return unauthorizedError("escrow: only the buyer may cancel")
	}
	if esc.Status != StatusFunded || e.now() <= esc.Deadline {
		return ErrCannotCancel
	}
	policy, err := e.feePolicy()
	if err != nil {
		return err
	}
	refund, platformFee := SplitApproval(esc.Amount, policy.FeeBps)

	prior := esc.Clone()
	esc.Status = StatusCancelled
	vault := e.ledger.Vault()
	err = e.settle(esc, prior,
		ledger.Transfer{From: vault, To: esc.Buyer, Amount: refund},
		ledger.Transfer{From: vault, To: policy.Recipient, Amount: platformFee},
	)
	if err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	e.emit(NewRefundedEvent(esc, esc.Buyer, refund))
	return nil
}

// SetPlatformFee changes the live fee rate. Owner only.
func (e *Engine) SetPlatformFee(caller crypto.Address, bps uint32) error {
	if e == nil || e.platform == nil {
		return errNilPlatform
	}
	return e.platform.SetFeeBps(caller, bps)
}

// Pause blocks new escrow creation. Owner only.
func (e *Engine) Pause(caller crypto.Address) error {
	if e == nil || e.platform == nil {
		return errNilPlatform
	}
	return e.platform.Pause(caller)
}

// Unpause re-enables escrow creation. Owner only.
func (e *Engine) Unpause(caller crypto.Address) error {
	if e == nil || e.platform == nil {
		return errNilPlatform
	}
	return e.platform.Unpause(caller)
}

// Get returns a read-only snapshot of the record.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Count returns the total number of escrows ever created.
func (e *Engine) Count() (uint64, error) {
	if e == nil || e.store == nil {
		return 0, errNilState
	}
	return e.store.Count()
}

// UserEscrows returns the ids, in creation order, in which the address
// appears as buyer, seller or arbiter.
func (e *Engine) UserEscrows(addr crypto.Address) ([]uint64, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	return e.store.UserEscrows(addr)
}
