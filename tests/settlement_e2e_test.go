// file: tests/settlement_e2e_test.go
package tests

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/params"
	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/crypto"
	"github.com/calder-eth/batchsettle/pkg/engine"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

func wei(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer literal %q", s)
	}
	return v
}

// TestFourTraderBatch settles a three-token batch with four traders,
// including a partially filled order and a buy order, and checks every
// resulting balance down to the last unit. Clearing prices: EUR 1e18,
// OIL 13e18, RED 14e18; fee factor 1000.
func TestFourTraderBatch(t *testing.T) {
	var (
		eur = common.HexToAddress("0x1000000000000000000000000000000000000001")
		oil = common.HexToAddress("0x2000000000000000000000000000000000000002")
		red = common.HexToAddress("0x3000000000000000000000000000000000000003")
	)

	domain := crypto.NewDomain("BatchSettle", big.NewInt(1337),
		common.HexToAddress("0x00000000000000000000000000000000ba7c45e7"))
	led := ledger.New()
	eng := engine.New(engine.Config{Domain: domain, Ledger: led})

	type trader struct {
		signer *crypto.Signer
		order  engine.Order
	}
	mk := func(sellToken, buyToken common.Address, sellAmount, buyAmount, executed string, typ engine.OrderType) trader {
		signer, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		o := engine.Order{
			SellAmount:     wei(t, sellAmount),
			BuyAmount:      wei(t, buyAmount),
			ExecutedAmount: wei(t, executed),
			SellToken:      sellToken,
			BuyToken:       buyToken,
			Tip:            new(big.Int),
			ValidTo:        4_000_000_000,
			Nonce:          1,
			Type:           typ,
		}
		if err := o.Sign(domain, signer); err != nil {
			t.Fatalf("sign: %v", err)
		}
		return trader{signer: signer, order: o}
	}

	traders := []trader{
		// Sells 12 RED for at least 13 OIL, fully executed.
		mk(red, oil, "12000000000000000000", "13000000000000000000", "12000000000000000000", engine.OrderSell),
		// Sells up to 13 OIL for RED, partially executed.
		mk(oil, red, "13000000000000000000", "12100000000000000000", "12923076923076923077", engine.OrderSell),
		// Buy order: spends up to 52 EUR for OIL, executed for 27 EUR.
		mk(eur, oil, "52000000000000000000", "4100000000000000000", "27000000000000000000", engine.OrderBuy),
		// Sells up to 3 OIL for EUR, partially executed.
		mk(oil, eur, "3000000000000000000", "40000000000000000000", "2076923076923076923", engine.OrderSell),
	}

	// Fund each trader with exactly their signed sell amount.
	for _, tr := range traders {
		if err := led.Credit(tr.order.SellToken, tr.signer.Address(), tr.order.SellAmount); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	var orders []byte
	types := make([]engine.OrderType, len(traders))
	for i, tr := range traders {
		orders = append(orders, tr.order.Encode()...)
		types[i] = tr.order.Type
	}

	receipt, err := eng.Settle(common.HexToAddress("0x0b"), engine.SettleInput{
		Orders:     orders,
		OrderTypes: types,
		ClearingPrices: []*big.Int{
			wei(t, "1000000000000000000"),  // EUR
			wei(t, "13000000000000000000"), // OIL
			wei(t, "14000000000000000000"), // RED
		},
		Tokens:    []common.Address{eur, oil, red},
		FeeFactor: 1000,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if receipt.Orders != 4 {
		t.Fatalf("receipt orders = %d, want 4", receipt.Orders)
	}

	checkBalance := func(label string, token, holder common.Address, want string) {
		t.Helper()
		if got := led.BalanceOf(token, holder); got.Cmp(wei(t, want)) != 0 {
			t.Errorf("%s = %s, want %s", label, got, want)
		}
	}

	t1, t2, t3, t4 := traders[0].signer.Address(), traders[1].signer.Address(),
		traders[2].signer.Address(), traders[3].signer.Address()

	// Each payout is floored; the residue stays in custody as fee dust.
	checkBalance("t1 RED", red, t1, "0")
	checkBalance("t1 OIL", oil, t1, "12910153846153846153")
	checkBalance("t2 OIL", oil, t2, "76923076923076923")
	checkBalance("t2 RED", red, t2, "11987999999999999999")
	checkBalance("t3 EUR", eur, t3, "25000000000000000000")
	checkBalance("t3 OIL", oil, t3, "2074846153846153846")
	checkBalance("t4 OIL", oil, t4, "923076923076923077")
	checkBalance("t4 EUR", eur, t4, "26972999999999999998")

	custody := eng.Address()
	checkBalance("custody EUR", eur, custody, "27000000000000002")
	checkBalance("custody OIL", oil, custody, "15000000000000001")
	checkBalance("custody RED", red, custody, "12000000000000001")

	wantFees := map[common.Address]string{
		eur: "27000000000000000",
		oil: "15000000000000001",
		red: "12000000000000000",
	}
	for token, want := range wantFees {
		fee := receipt.Fees[token]
		if fee == nil || fee.Cmp(wei(t, want)) != 0 {
			t.Errorf("fee[%s] = %v, want %s", token.Hex(), fee, want)
		}
	}
}

// TestPoolBackedBatch settles a single order whose counterparty is an
// AMM pool: the pulled sell tokens are swapped through the pool by an
// interaction, and the claimed clearing price is verified against the
// pool's reserves.
func TestPoolBackedBatch(t *testing.T) {
	var (
		tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
		tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	)

	cfg := params.Default()
	domain := crypto.NewDomain(cfg.Chain.DomainTag, cfg.Chain.ID, cfg.Chain.EngineAddress)
	led := ledger.New()

	pool, err := amm.NewPool(cfg.Amm.Factory, tokenA, tokenB, cfg.Amm.InitCodeHash)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	// Deep reserves at 1.3 B per A.
	led.Credit(tokenA, pool.Addr, big.NewInt(10_000_000))
	led.Credit(tokenB, pool.Addr, big.NewInt(13_000_000))

	router := amm.NewRouter(cfg.Chain.EngineAddress)
	router.Register(pool)

	eng := engine.New(engine.Config{
		Domain: domain,
		Ledger: led,
		Prices: &engine.ReferencePoolBand{
			Factory:      cfg.Amm.Factory,
			InitCodeHash: cfg.Amm.InitCodeHash,
			ReserveBand:  cfg.Engine.ReserveBand,
			TradeBand:    cfg.Engine.TradeBand,
		},
		Invoker: router,
	})

	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	order := engine.Order{
		SellAmount:     big.NewInt(1000),
		BuyAmount:      big.NewInt(1311),
		ExecutedAmount: big.NewInt(1000),
		SellToken:      tokenA,
		BuyToken:       tokenB,
		Tip:            new(big.Int),
		ValidTo:        4_000_000_000,
		Nonce:          7,
	}
	if err := order.Sign(domain, signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	led.Credit(tokenA, signer.Address(), big.NewInt(1000))

	// Swap the full pulled amount through the pool; proceeds return to
	// custody to fund the trader's payout.
	swap := engine.Interaction{
		Target:  pool.Addr,
		Payload: amm.SwapCalldata(tokenA, big.NewInt(1000), big.NewInt(1294), eng.Address()),
	}

	// Claimed price 1.2974 B per A: a shade under the reserve ratio but
	// inside the acceptance band.
	receipt, err := eng.Settle(common.HexToAddress("0x0b"), engine.SettleInput{
		Orders:           order.Encode(),
		Interactions:     swap.Encode(),
		InteractionCount: 1,
		ClearingPrices:   []*big.Int{big.NewInt(12974), big.NewInt(10000)},
		Tokens:           []common.Address{tokenA, tokenB},
		FeeFactor:        100,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(receipt.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(receipt.Trades))
	}

	// sold = 1000*99/100 = 990, payout = 990*12974/10000 = 1284.
	if got := led.BalanceOf(tokenB, signer.Address()); got.Int64() != 1284 {
		t.Errorf("trader payout = %s, want 1284", got)
	}
	if got := led.BalanceOf(tokenA, signer.Address()); got.Sign() != 0 {
		t.Errorf("trader residual sell balance = %s, want 0", got)
	}

	// Custody swapped all 1000 A away and keeps the swap surplus in B.
	if got := led.BalanceOf(tokenA, eng.Address()); got.Sign() != 0 {
		t.Errorf("custody A = %s, want 0", got)
	}
	if got := led.BalanceOf(tokenB, eng.Address()); got.Int64() != 10 {
		t.Errorf("custody B = %s, want 10", got)
	}

	// The pool's reserves moved with the swap.
	r0, r1 := pool.Reserves(led.Begin())
	if r0.Int64() != 10_001_000 || r1.Int64() != 12_998_706 {
		t.Errorf("reserves = %s/%s, want 10001000/12998706", r0, r1)
	}
}
