package ledger

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store persists token balances in pebble.
// Keys: bal:<20-byte token><20-byte holder>, value: big-endian amount.
type Store struct {
	db *pebble.DB
}

var keyPrefix = []byte("bal:")

func NewStore(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func balanceStoreKey(token, holder common.Address) []byte {
	key := make([]byte, 0, len(keyPrefix)+40)
	key = append(key, keyPrefix...)
	key = append(key, token.Bytes()...)
	key = append(key, holder.Bytes()...)
	return key
}

// SaveBalance writes one balance synchronously.
func (s *Store) SaveBalance(token, holder common.Address, amount *big.Int) error {
	if err := s.db.Set(balanceStoreKey(token, holder), amount.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadAll iterates every stored balance and hands it to fn.
func (s *Store) LoadAll(fn func(token, holder common.Address, amount *big.Int)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: []byte("bal;"), // ';' is ':'+1
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(keyPrefix)+40 {
			continue
		}
		var token, holder common.Address
		copy(token[:], key[len(keyPrefix):len(keyPrefix)+20])
		copy(holder[:], key[len(keyPrefix)+20:])
		fn(token, holder, new(big.Int).SetBytes(iter.Value()))
	}
	return iter.Error()
}
