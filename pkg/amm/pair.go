package amm

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var ErrIdenticalTokens = errors.New("identical tokens")

// SortTokens orders a token pair ascending, the canonical order for
// pair-address derivation and reserve layout.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address, err error) {
	switch bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) {
	case -1:
		return tokenA, tokenB, nil
	case 1:
		return tokenB, tokenA, nil
	default:
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
}

// PairAddress derives a pair's address without any state lookup:
// keccak256(0xff || factory || keccak256(token0 || token1) || initCodeHash),
// taking the last 20 bytes. Tokens may be passed in either order.
func PairAddress(factory, tokenA, tokenB common.Address, initCodeHash common.Hash) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(token0.Bytes())
	h.Write(token1.Bytes())
	salt := h.Sum(nil)

	h = sha3.NewLegacyKeccak256()
	h.Write([]byte{0xff})
	h.Write(factory.Bytes())
	h.Write(salt)
	h.Write(initCodeHash.Bytes())
	sum := h.Sum(nil)

	var addr common.Address
	copy(addr[:], sum[12:]) // last 20 bytes
	return addr, nil
}
