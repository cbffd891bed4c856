package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

// Invoker dispatches an interaction to its target. Implementations run
// inside the settlement transaction, so their effects revert with it.
type Invoker interface {
	Invoke(vs ledger.ValueStore, target common.Address, payload []byte) (*amm.Trade, error)
}

// executeInteractions runs each interaction against its target.
//
// The one hard rule is the denylist: an interaction must never target
// the custody address, since that is the account every trader's escrow
// sits in. Beyond that, a failed invocation is tolerated rather than
// fatal: interactions are best-effort liquidity probes, and the price
// and fee checks downstream are the actual safety backstop.
func (e *Engine) executeInteractions(vs ledger.ValueStore, interactions []Interaction) ([]amm.Trade, error) {
	var trades []amm.Trade
	for i, x := range interactions {
		if x.Target == e.address {
			return nil, fmt.Errorf("interaction %d: %w", i, ErrForbiddenTarget)
		}
		if e.invoker == nil {
			continue
		}
		trade, err := e.invoker.Invoke(vs, x.Target, x.Payload)
		if err != nil {
			e.log.Warn("interaction_failed",
				zap.Int("index", i),
				zap.String("target", x.Target.Hex()),
				zap.Error(err))
			continue
		}
		if trade != nil {
			trades = append(trades, *trade)
		}
	}
	return trades, nil
}
