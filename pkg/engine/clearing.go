package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/pkg/ledger"
)

// soldAmount is the portion of an executed amount that trades after the
// 1/feeFactor fee: executed * (feeFactor-1) / feeFactor, floored. The
// remainder, exactly executed - soldAmount, is the collected fee, so
// rounding always favors the operator.
func soldAmount(executed *big.Int, feeFactor uint64) *big.Int {
	sold := new(big.Int).Mul(executed, new(big.Int).SetUint64(feeFactor-1))
	return sold.Quo(sold, new(big.Int).SetUint64(feeFactor))
}

// checkLimitPrice enforces the trader's signed limit against the
// claimed clearing ratio, net of fee:
//
//	priceNum * sellAmount * feeFactor <= priceDen * buyAmount * (feeFactor-1)
func checkLimitPrice(o *Order, priceNum, priceDen *big.Int, feeFactor uint64) error {
	lhs := new(big.Int).Mul(priceNum, o.SellAmount)
	lhs.Mul(lhs, new(big.Int).SetUint64(feeFactor))
	rhs := new(big.Int).Mul(priceDen, o.BuyAmount)
	rhs.Mul(rhs, new(big.Int).SetUint64(feeFactor-1))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: owner %s", ErrLimitPriceNotMet, o.Owner.Hex())
	}
	return nil
}

// clearOrders computes and executes every order's settlement transfer
// at the uniform clearing prices, accumulating the collected fee per
// sell token for reconciliation.
func (e *Engine) clearOrders(vs ledger.ValueStore, orders []Order, prices []*big.Int, tokens []common.Address, feeFactor uint64) (map[common.Address]*big.Int, error) {
	fees := make(map[common.Address]*big.Int)
	for i := range orders {
		o := &orders[i]

		sellIdx, err := TokenIndex(o.SellToken, tokens)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		buyIdx, err := TokenIndex(o.BuyToken, tokens)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		priceNum, priceDen := prices[sellIdx], prices[buyIdx]

		if err := checkLimitPrice(o, priceNum, priceDen, feeFactor); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if o.Type == OrderKillOrFill && o.ExecutedAmount.Cmp(o.SellAmount) != 0 {
			return nil, fmt.Errorf("order %d: %w: executed %s of %s", i,
				ErrPartialFillNotAllowed, o.ExecutedAmount.String(), o.SellAmount.String())
		}

		sold := soldAmount(o.ExecutedAmount, feeFactor)
		received := new(big.Int).Mul(sold, priceNum)
		received.Quo(received, priceDen)

		if err := vs.Transfer(o.BuyToken, e.address, o.Owner, received); err != nil {
			return nil, fmt.Errorf("order %d: %w: %v", i, ErrTransferFailed, err)
		}

		fee := new(big.Int).Sub(o.ExecutedAmount, sold)
		acc, ok := fees[o.SellToken]
		if !ok {
			acc = new(big.Int)
			fees[o.SellToken] = acc
		}
		acc.Add(acc, fee)
	}
	return fees, nil
}
