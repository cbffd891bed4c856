package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/pkg/ledger"
)

var (
	ErrUnknownToken          = errors.New("token not in pair")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrBadSwapRate           = errors.New("swap violates constant product")
)

// Trade records the realized amounts of one executed swap. The price
// verifier matches claimed clearing prices against these.
type Trade struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// Pool is a constant-product market whose reserves are its ledger
// balances at the derived pair address. Because reserves live in the
// ledger, swaps executed inside a settlement transaction roll back with
// everything else if the batch aborts.
type Pool struct {
	Addr   common.Address
	Token0 common.Address
	Token1 common.Address
}

// NewPool derives the pool for a token pair under the given factory.
func NewPool(factory, tokenA, tokenB common.Address, initCodeHash common.Hash) (*Pool, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	addr, err := PairAddress(factory, token0, token1, initCodeHash)
	if err != nil {
		return nil, err
	}
	return &Pool{Addr: addr, Token0: token0, Token1: token1}, nil
}

// Reserves reads the pool's current reserves from the value store.
func (p *Pool) Reserves(vs ledger.ValueStore) (reserve0, reserve1 *big.Int) {
	return vs.BalanceOf(p.Token0, p.Addr), vs.BalanceOf(p.Token1, p.Addr)
}

func (p *Pool) other(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	default:
		return common.Address{}, ErrUnknownToken
	}
}

// Swap sells amountIn of tokenIn from payer and sends amountOut of the
// opposite token to recipient. The requested amountOut must not exceed
// what the constant-product formula (0.3% fee) allows:
//
//	amountOut * (reserveIn*1000 + amountIn*997) <= amountIn * 997 * reserveOut
func (p *Pool) Swap(vs ledger.ValueStore, payer, tokenIn common.Address, amountIn, amountOut *big.Int, recipient common.Address) (*Trade, error) {
	tokenOut, err := p.other(tokenIn)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() <= 0 || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrBadSwapRate)
	}

	reserveIn := vs.BalanceOf(tokenIn, p.Addr)
	reserveOut := vs.BalanceOf(tokenOut, p.Addr)
	if reserveOut.Cmp(amountOut) <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	// lhs = amountOut * (reserveIn*1000 + amountIn*997)
	lhs := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	lhs.Add(lhs, new(big.Int).Mul(amountIn, big.NewInt(997)))
	lhs.Mul(lhs, amountOut)
	// rhs = amountIn * 997 * reserveOut
	rhs := new(big.Int).Mul(amountIn, big.NewInt(997))
	rhs.Mul(rhs, reserveOut)
	if lhs.Cmp(rhs) > 0 {
		return nil, ErrBadSwapRate
	}

	if err := vs.Transfer(tokenIn, payer, p.Addr, amountIn); err != nil {
		return nil, fmt.Errorf("swap pay-in: %w", err)
	}
	if err := vs.Transfer(tokenOut, p.Addr, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("swap pay-out: %w", err)
	}

	return &Trade{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
	}, nil
}
