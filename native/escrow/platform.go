package escrow

import (
	"sync"

	"escrowd/crypto"
)

// FeePolicy is an immutable snapshot of the fee settings. Every engine
// operation takes exactly one snapshot so a concurrent admin change can never
// split a single payout calculation.
type FeePolicy struct {
	FeeBps    uint32
	Recipient crypto.Address
}

// Platform holds the process-wide, owner-controlled settings: fee rate, fee
// recipient and the pause switch gating escrow creation. It is injected into
// the engine rather than read as ambient global state.
type Platform struct {
	mu           sync.RWMutex
	owner        crypto.Address
	feeRecipient crypto.Address
	feeBps       uint32
	paused       bool
}

// NewPlatform creates the configuration with the default fee rate.
func NewPlatform(owner, feeRecipient crypto.Address) *Platform {
	return &Platform{
		owner:        owner,
		feeRecipient: feeRecipient,
		feeBps:       DefaultPlatformFeeBps,
	}
}

// Owner returns the identity permitted to change configuration.
func (p *Platform) Owner() crypto.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

// FeePolicy returns a consistent snapshot of the live fee settings.
func (p *Platform) FeePolicy() FeePolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return FeePolicy{FeeBps: p.feeBps, Recipient: p.feeRecipient}
}

// FeeBps returns the current platform fee rate.
func (p *Platform) FeeBps() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeBps
}

// Paused reports whether escrow creation is currently blocked.
func (p *Platform) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Platform) requireOwner(caller crypto.Address) error {
	if caller != p.owner {
		return unauthorizedError("escrow: caller is not the platform owner")
	}
	return nil
}

// SetFeeBps updates the platform fee rate. Owner only; rates above
// MaxPlatformFeeBps are rejected. The new rate applies to the next payout on
// any escrow, not the rate in effect at that escrow's creation.
func (p *Platform) SetFeeBps(caller crypto.Address, bps uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller); err != nil {
		return err
	}
	if bps > MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	p.feeBps = bps
	return nil
}

// SetFeeRecipient updates the identity receiving the platform's cut.
func (p *Platform) SetFeeRecipient(caller, recipient crypto.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller); err != nil {
		return err
	}
	if recipient.IsZero() {
		return validationError("escrow: fee recipient address required")
	}
	p.feeRecipient = recipient
	return nil
}

// Pause blocks escrow creation. No other operation is gated.
func (p *Platform) Pause(caller crypto.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller); err != nil {
		return err
	}
	p.paused = true
	return nil
}

// Unpause re-enables escrow creation.
func (p *Platform) Unpause(caller crypto.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireOwner(caller); err != nil {
		return err
	}
	p.paused = false
	return nil
}
