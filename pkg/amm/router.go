package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/pkg/ledger"
)

var (
	ErrUnknownTarget     = errors.New("no pool at target address")
	ErrMalformedCalldata = errors.New("malformed swap calldata")
)

// swap calldata: tokenIn(20) || amountIn(32) || amountOut(32) || recipient(20)
const swapCalldataLen = 20 + 32 + 32 + 20

// Router dispatches interaction payloads to registered pools. The payer
// (the settlement engine's custody address) funds every swap; proceeds
// go to the recipient named in the calldata.
type Router struct {
	payer common.Address
	pools map[common.Address]*Pool
}

func NewRouter(payer common.Address) *Router {
	return &Router{payer: payer, pools: make(map[common.Address]*Pool)}
}

// Register makes a pool reachable at its derived address.
func (r *Router) Register(pool *Pool) {
	r.pools[pool.Addr] = pool
}

// Pool returns the registered pool at addr, or nil.
func (r *Router) Pool(addr common.Address) *Pool {
	return r.pools[addr]
}

// Invoke decodes payload as swap calldata and executes it against the
// pool registered at target.
func (r *Router) Invoke(vs ledger.ValueStore, target common.Address, payload []byte) (*Trade, error) {
	pool, ok := r.pools[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target.Hex())
	}
	if len(payload) != swapCalldataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedCalldata, len(payload))
	}

	tokenIn := common.BytesToAddress(payload[:20])
	amountIn := new(big.Int).SetBytes(payload[20:52])
	amountOut := new(big.Int).SetBytes(payload[52:84])
	recipient := common.BytesToAddress(payload[84:104])

	return pool.Swap(vs, r.payer, tokenIn, amountIn, amountOut, recipient)
}

// SwapCalldata builds the payload Invoke expects.
func SwapCalldata(tokenIn common.Address, amountIn, amountOut *big.Int, recipient common.Address) []byte {
	out := make([]byte, swapCalldataLen)
	copy(out[:20], tokenIn.Bytes())
	amountIn.FillBytes(out[20:52])
	amountOut.FillBytes(out[52:84])
	copy(out[84:], recipient.Bytes())
	return out
}
