package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("negative amount")
)

// ValueStore is the fungible-token surface the settlement engine works
// against: per-token balances and transfers between holders.
type ValueStore interface {
	BalanceOf(token, holder common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// Ledger holds token balances in memory, optionally backed by a pebble
// store so custody balances survive restarts. All settlement effects go
// through a Tx; the base ledger only changes on Commit.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*big.Int
	store    *Store // nil for a purely in-memory ledger
}

// New creates an empty in-memory ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[balanceKey]*big.Int)}
}

// Open creates a ledger hydrated from the pebble store at dbPath.
// Commits write through to the store.
func Open(dbPath string) (*Ledger, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}

	l := New()
	l.store = store
	if err := store.LoadAll(func(token, holder common.Address, amount *big.Int) {
		l.balances[balanceKey{token, holder}] = amount
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	return l, nil
}

// Close closes the underlying store, if any.
func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// BalanceOf returns a copy of the holder's balance for token.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Credit mints amount of token to holder, outside any transaction.
// Used for deposits and test genesis state.
func (l *Ledger) Credit(token, holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{token, holder}
	b, ok := l.balances[key]
	if !ok {
		b = new(big.Int)
		l.balances[key] = b
	}
	b.Add(b, amount)

	if l.store != nil {
		if err := l.store.SaveBalance(token, holder, b); err != nil {
			return fmt.Errorf("failed to persist balance: %w", err)
		}
	}
	return nil
}

// Begin opens a transaction over the ledger. Reads see committed state
// plus the transaction's own writes; nothing is visible to other
// readers until Commit. Dropping the Tx without committing discards all
// of its effects, which is what makes a settlement call atomic.
func (l *Ledger) Begin() *Tx {
	return &Tx{ledger: l, overlay: make(map[balanceKey]*big.Int)}
}

// Tx is a write-buffered view of the ledger.
type Tx struct {
	ledger  *Ledger
	overlay map[balanceKey]*big.Int
	done    bool
}

func (tx *Tx) balance(key balanceKey) *big.Int {
	if b, ok := tx.overlay[key]; ok {
		return b
	}
	base := tx.ledger.BalanceOf(key.token, key.holder)
	tx.overlay[key] = base
	return base
}

// BalanceOf returns a copy of the balance as seen by this transaction.
func (tx *Tx) BalanceOf(token, holder common.Address) *big.Int {
	return new(big.Int).Set(tx.balance(balanceKey{token, holder}))
}

// Transfer moves amount of token from one holder to another within the
// transaction. Fails without side effects if from has too little.
func (tx *Tx) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	src := tx.balance(balanceKey{token, from})
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s holder %s has %s, needs %s",
			ErrInsufficientBalance, token.Hex(), from.Hex(), src.String(), amount.String())
	}
	src.Sub(src, amount)
	dst := tx.balance(balanceKey{token, to})
	dst.Add(dst, amount)
	return nil
}

// Commit applies the transaction to the base ledger and persists every
// touched balance. A Tx can commit at most once.
func (tx *Tx) Commit() error {
	if tx.done {
		return errors.New("transaction already committed")
	}
	tx.done = true

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range tx.overlay {
		l.balances[key] = b
		if l.store != nil {
			if err := l.store.SaveBalance(key.token, key.holder, b); err != nil {
				return fmt.Errorf("failed to persist balance: %w", err)
			}
		}
	}
	return nil
}

var _ ValueStore = (*Tx)(nil)
