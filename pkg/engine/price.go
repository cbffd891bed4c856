package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/params"
	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

// PriceVerifier accepts or rejects the operator's claimed clearing
// price for one token pair. priceNum/priceDen is the claimed exchange
// ratio: buy-token units received per sell-token unit, before fees.
type PriceVerifier interface {
	Verify(vs ledger.ValueStore, sellToken, buyToken common.Address, priceNum, priceDen *big.Int, trades []amm.Trade) error
}

// FeeFactorLimit is the strategy for deployments that source liquidity
// from arbitrary interactions: there is no single fair reference, so
// price acceptance reduces to the per-order limit check in the clearing
// stage, which every order must pass anyway.
type FeeFactorLimit struct{}

func (FeeFactorLimit) Verify(ledger.ValueStore, common.Address, common.Address, *big.Int, *big.Int, []amm.Trade) error {
	return nil
}

// ReferencePoolBand checks claimed prices against an AMM reference
// pool whose address is derived deterministically from the token pair.
// A claimed price is accepted if it sits within ReserveBand of the
// pool's reserve ratio, or within the looser TradeBand of the ratio
// realized by any executed interaction on the same pair. The second
// branch intentionally lets a batch through when the reference pool is
// too thin, provided the realized trade price itself is close to fair.
type ReferencePoolBand struct {
	Factory      common.Address
	InitCodeHash common.Hash
	ReserveBand  params.Band
	TradeBand    params.Band
}

func (v *ReferencePoolBand) Verify(vs ledger.ValueStore, sellToken, buyToken common.Address, priceNum, priceDen *big.Int, trades []amm.Trade) error {
	pair, err := amm.PairAddress(v.Factory, sellToken, buyToken, v.InitCodeHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPriceRejected, err)
	}

	reserveSell := vs.BalanceOf(sellToken, pair)
	reserveBuy := vs.BalanceOf(buyToken, pair)
	if reserveSell.Sign() > 0 && reserveBuy.Sign() > 0 &&
		withinBand(priceNum, priceDen, reserveBuy, reserveSell, v.ReserveBand) {
		return nil
	}

	for _, t := range trades {
		var refNum, refDen *big.Int
		switch {
		case t.TokenIn == sellToken && t.TokenOut == buyToken:
			refNum, refDen = t.AmountOut, t.AmountIn
		case t.TokenIn == buyToken && t.TokenOut == sellToken:
			refNum, refDen = t.AmountIn, t.AmountOut
		default:
			continue
		}
		if refNum.Sign() > 0 && refDen.Sign() > 0 &&
			withinBand(priceNum, priceDen, refNum, refDen, v.TradeBand) {
			return nil
		}
	}

	return fmt.Errorf("%w: pair %s/%s claimed %s/%s", ErrPriceRejected,
		sellToken.Hex(), buyToken.Hex(), priceNum.String(), priceDen.String())
}

// withinBand reports whether claim (claimNum/claimDen) lies inside the
// multiplicative band around ref (refNum/refDen):
//
//	ref*LoNum/LoDen <= claim <= ref*HiNum/HiDen
//
// evaluated by cross-multiplication, so no precision is lost.
func withinBand(claimNum, claimDen, refNum, refDen *big.Int, band params.Band) bool {
	// claim/ref >= Lo  <=>  claimNum*refDen*LoDen >= refNum*claimDen*LoNum
	lhs := new(big.Int).Mul(claimNum, refDen)
	lhs.Mul(lhs, new(big.Int).SetUint64(band.LoDen))
	rhs := new(big.Int).Mul(refNum, claimDen)
	rhs.Mul(rhs, new(big.Int).SetUint64(band.LoNum))
	if lhs.Cmp(rhs) < 0 {
		return false
	}
	// claim/ref <= Hi  <=>  claimNum*refDen*HiDen <= refNum*claimDen*HiNum
	lhs = new(big.Int).Mul(claimNum, refDen)
	lhs.Mul(lhs, new(big.Int).SetUint64(band.HiDen))
	rhs = new(big.Int).Mul(refNum, claimDen)
	rhs.Mul(rhs, new(big.Int).SetUint64(band.HiNum))
	return lhs.Cmp(rhs) <= 0
}
