package engine

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TokenIndex locates a token's position in the settlement's sorted
// token list by binary search.
//
// Precondition: tokens is strictly ascending with no duplicates. This
// is trusted, not re-validated, on every lookup; callers must guarantee
// it for the whole settlement call or lookups silently break.
func TokenIndex(token common.Address, tokens []common.Address) (int, error) {
	lo, hi := 0, len(tokens)
	for lo < hi {
		mid := (lo + hi) / 2
		switch bytes.Compare(tokens[mid].Bytes(), token.Bytes()) {
		case 0:
			return mid, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrTokenNotFound, token.Hex())
}
