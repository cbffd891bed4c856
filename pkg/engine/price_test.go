package engine

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/params"
	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

var (
	priceFactory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	priceInitHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
	priceTokenX   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	priceTokenY   = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func newBandVerifier() *ReferencePoolBand {
	def := params.Default().Engine
	return &ReferencePoolBand{
		Factory:      priceFactory,
		InitCodeHash: priceInitHash,
		ReserveBand:  def.ReserveBand,
		TradeBand:    def.TradeBand,
	}
}

func fundPool(t *testing.T, l *ledger.Ledger, rx, ry int64) {
	t.Helper()
	pair, err := amm.PairAddress(priceFactory, priceTokenX, priceTokenY, priceInitHash)
	if err != nil {
		t.Fatalf("pair address: %v", err)
	}
	l.Credit(priceTokenX, pair, big.NewInt(rx))
	l.Credit(priceTokenY, pair, big.NewInt(ry))
}

func TestReserveBandAcceptsFairPrice(t *testing.T) {
	v := newBandVerifier()
	l := ledger.New()
	fundPool(t, l, 1_000_000, 1_300_000)

	// Selling X for Y: reference ratio is reserveY/reserveX = 1.3.
	tx := l.Begin()
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(13), big.NewInt(10), nil); err != nil {
		t.Errorf("exact reserve ratio rejected: %v", err)
	}
	// Just inside the band.
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(1301), big.NewInt(1000), nil); err != nil {
		t.Errorf("in-band price rejected: %v", err)
	}
}

func TestReserveBandRejectsDeviantPrice(t *testing.T) {
	v := newBandVerifier()
	l := ledger.New()
	fundPool(t, l, 1_000_000, 1_300_000)

	tx := l.Begin()
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(14), big.NewInt(10), nil); !errors.Is(err, ErrPriceRejected) {
		t.Errorf("err = %v, want ErrPriceRejected", err)
	}
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(12), big.NewInt(10), nil); !errors.Is(err, ErrPriceRejected) {
		t.Errorf("err = %v, want ErrPriceRejected", err)
	}
}

func TestTradeBandBacksUpThinPool(t *testing.T) {
	v := newBandVerifier()
	l := ledger.New() // no pool reserves at all

	trades := []amm.Trade{{
		TokenIn:   priceTokenX,
		TokenOut:  priceTokenY,
		AmountIn:  big.NewInt(1000),
		AmountOut: big.NewInt(1299),
	}}

	tx := l.Begin()
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(13), big.NewInt(10), trades); err != nil {
		t.Errorf("realized trade ratio rejected: %v", err)
	}

	// The same trade matches the reverse order direction too.
	if err := v.Verify(tx, priceTokenY, priceTokenX, big.NewInt(10), big.NewInt(13), trades); err != nil {
		t.Errorf("reverse direction rejected: %v", err)
	}

	// A trade on an unrelated pair is no evidence.
	unrelated := []amm.Trade{{
		TokenIn:   common.HexToAddress("0xdead"),
		TokenOut:  priceTokenY,
		AmountIn:  big.NewInt(1),
		AmountOut: big.NewInt(1),
	}}
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(13), big.NewInt(10), unrelated); !errors.Is(err, ErrPriceRejected) {
		t.Errorf("err = %v, want ErrPriceRejected", err)
	}
}

func TestTradeBandRejectsFarPrice(t *testing.T) {
	v := newBandVerifier()
	l := ledger.New()

	trades := []amm.Trade{{
		TokenIn:   priceTokenX,
		TokenOut:  priceTokenY,
		AmountIn:  big.NewInt(1000),
		AmountOut: big.NewInt(1299),
	}}

	tx := l.Begin()
	if err := v.Verify(tx, priceTokenX, priceTokenY, big.NewInt(14), big.NewInt(10), trades); !errors.Is(err, ErrPriceRejected) {
		t.Errorf("err = %v, want ErrPriceRejected", err)
	}
}

func TestFeeFactorStrategyAcceptsEverything(t *testing.T) {
	var v FeeFactorLimit
	if err := v.Verify(nil, priceTokenX, priceTokenY, big.NewInt(1), big.NewInt(1_000_000), nil); err != nil {
		t.Errorf("fee-factor strategy must defer to the limit check: %v", err)
	}
}
