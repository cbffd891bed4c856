package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

// reconcileFees is the batch's final safety check: for every token the
// engine must retain at least its declared fees, net of whatever the
// interactions consumed. Floor rounding in the clearing math only ever
// pushes the final balance up, so a shortfall means value leaked.
//
//	finalBalance >= initialBalance + collectedFee - interactionOutflow
func (e *Engine) reconcileFees(vs ledger.ValueStore, tokens []common.Address, initial, fees map[common.Address]*big.Int, trades []amm.Trade) error {
	outflow := make(map[common.Address]*big.Int)
	for _, t := range trades {
		acc, ok := outflow[t.TokenIn]
		if !ok {
			acc = new(big.Int)
			outflow[t.TokenIn] = acc
		}
		acc.Add(acc, t.AmountIn)
	}

	for _, token := range tokens {
		want := new(big.Int).Set(initial[token])
		if fee, ok := fees[token]; ok {
			want.Add(want, fee)
		}
		if out, ok := outflow[token]; ok {
			want.Sub(want, out)
		}
		final := vs.BalanceOf(token, e.address)
		if final.Cmp(want) < 0 {
			return fmt.Errorf("%w: token %s final %s < required %s",
				ErrInsufficientFeeCollected, token.Hex(), final.String(), want.String())
		}
	}
	return nil
}
