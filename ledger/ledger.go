package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrowd/core/types"
	"escrowd/crypto"
	"escrowd/storage"
)

var (
	// ErrInsufficientFunds is returned when a transfer leg would overdraw
	// its source account.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrVaultDeposit is returned when value is pushed at the vault outside
	// an escrow operation. Custody only ever grows through escrow creation.
	ErrVaultDeposit = errors.New("ledger: direct vault deposits are not accepted")
)

var acctPrefix = []byte("acct:")

// Transfer is one leg of a payout set: move Amount from From to To.
type Transfer struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

// Ledger is the value-transfer primitive backing the escrow engine. Balances
// are plain big integers persisted in the KV store; every Apply call settles
// all of its legs or none of them.
type Ledger struct {
	mu    sync.Mutex
	db    storage.Database
	vault crypto.Address
}

// New creates a ledger over the given store. The module vault address is
// derived deterministically so it never collides with a key-holder account.
func New(db storage.Database) *Ledger {
	raw := ethcrypto.Keccak256([]byte("escrowd/module-vault"))
	var vault crypto.Address
	copy(vault[:], raw[12:])
	return &Ledger{db: db, vault: vault}
}

// Vault returns the custody address deposits are held under.
func (l *Ledger) Vault() crypto.Address {
	return l.vault
}

func acctKey(addr crypto.Address) []byte {
	return append(append([]byte{}, acctPrefix...), addr[:]...)
}

func (l *Ledger) getAccount(addr crypto.Address) (*types.Account, error) {
	raw, err := l.db.Get(acctKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(raw, acc); err != nil {
		return nil, fmt.Errorf("ledger: decode account %s: %w", addr, err)
	}
	return types.EnsureAccount(acc), nil
}

func (l *Ledger) putAccount(addr crypto.Address, acc *types.Account) error {
	raw, err := rlp.EncodeToBytes(types.EnsureAccount(acc))
	if err != nil {
		return fmt.Errorf("ledger: encode account %s: %w", addr, err)
	}
	return l.db.Put(acctKey(addr), raw)
}

// BalanceOf returns the current spendable balance of the address.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.getAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Credit mints value onto an account. It exists for genesis allocations and
// tests; the vault cannot be credited directly.
func (l *Ledger) Credit(addr crypto.Address, amount *big.Int) error {
	if addr == l.vault {
		return ErrVaultDeposit
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: credit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.getAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.putAccount(addr, acc)
}

// Apply settles a payout set atomically: every leg is validated and staged
// against working copies of the touched accounts, and only when the whole set
// balances is anything written back. The write-back itself is a single batch,
// so a failure on any leg or in the store leaves every account untouched.
func (l *Ledger) Apply(transfers ...Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[crypto.Address]*types.Account)
	order := make([]crypto.Address, 0, len(transfers)*2)
	load := func(addr crypto.Address) (*types.Account, error) {
		if acc, ok := staged[addr]; ok {
			return acc, nil
		}
		acc, err := l.getAccount(addr)
		if err != nil {
			return nil, err
		}
		staged[addr] = acc
		order = append(order, addr)
		return acc, nil
	}

	for _, leg := range transfers {
		amt := leg.Amount
		if amt == nil {
			amt = big.NewInt(0)
		}
		if amt.Sign() < 0 {
			return fmt.Errorf("ledger: negative transfer amount")
		}
		if amt.Sign() == 0 {
			continue
		}
		if leg.From == leg.To {
			continue
		}
		from, err := load(leg.From)
		if err != nil {
			return err
		}
		to, err := load(leg.To)
		if err != nil {
			return err
		}
		if from.Balance.Cmp(amt) < 0 {
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, leg.From)
		}
		from.Balance = new(big.Int).Sub(from.Balance, amt)
		to.Balance = new(big.Int).Add(to.Balance, amt)
	}

	batch := make([]storage.KV, 0, len(order))
	for _, addr := range order {
		raw, err := rlp.EncodeToBytes(types.EnsureAccount(staged[addr]))
		if err != nil {
			return fmt.Errorf("ledger: encode account %s: %w", addr, err)
		}
		batch = append(batch, storage.KV{Key: acctKey(addr), Value: raw})
	}
	return l.db.WriteBatch(batch)
}
