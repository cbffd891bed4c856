package engine

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/auth"
	"github.com/calder-eth/batchsettle/pkg/crypto"
	"github.com/calder-eth/batchsettle/pkg/ledger"
	"github.com/calder-eth/batchsettle/pkg/util"
)

// Engine executes settlement batches. All state it touches lives in the
// ledger; its own address doubles as the custody account that escrows
// trader funds between the pull and the settlement transfer.
type Engine struct {
	domain       *crypto.Domain
	ledger       *ledger.Ledger
	auth         auth.Authorizer
	prices       PriceVerifier
	invoker      Invoker
	clock        util.Clock
	log          *zap.Logger
	address      common.Address
	minFeeFactor uint64
	settling     atomic.Bool
}

// Config carries the engine's collaborators. Domain and Ledger are
// required; the rest default to permissive no-ops suitable for tests
// and single-operator devnets.
type Config struct {
	Domain       *crypto.Domain
	Ledger       *ledger.Ledger
	Auth         auth.Authorizer
	Prices       PriceVerifier
	Invoker      Invoker
	Clock        util.Clock
	Logger       *zap.Logger
	MinFeeFactor uint64
}

func New(cfg Config) *Engine {
	if cfg.Auth == nil {
		cfg.Auth = auth.Open{}
	}
	if cfg.Prices == nil {
		cfg.Prices = FeeFactorLimit{}
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MinFeeFactor < 2 {
		cfg.MinFeeFactor = 2
	}
	return &Engine{
		domain:       cfg.Domain,
		ledger:       cfg.Ledger,
		auth:         cfg.Auth,
		prices:       cfg.Prices,
		invoker:      cfg.Invoker,
		clock:        cfg.Clock,
		log:          cfg.Logger,
		address:      cfg.Domain.Contract(),
		minFeeFactor: cfg.MinFeeFactor,
	}
}

// Address returns the engine's custody address.
func (e *Engine) Address() common.Address { return e.address }

// Domain returns the deployment's replay-protection domain.
func (e *Engine) Domain() *crypto.Domain { return e.domain }

// SettleInput is one settlement batch as submitted by an operator.
type SettleInput struct {
	Orders           []byte      // fixed-stride order records
	OrderTypes       []OrderType // per record; nil means all sell orders
	Interactions     []byte      // length-prefixed interaction records
	InteractionCount int
	ClearingPrices   []*big.Int       // parallel to Tokens
	Tokens           []common.Address // strictly ascending, no duplicates
	FeeFactor        uint64
}

// Receipt summarizes a committed settlement.
type Receipt struct {
	Orders       int
	Interactions int
	Trades       []amm.Trade
	Fees         map[common.Address]*big.Int
}

// Settle executes one batch atomically: every check and transfer runs
// against a ledger transaction that is only committed if the whole
// batch succeeds, so a failure at any stage leaves no trace.
func (e *Engine) Settle(caller common.Address, in SettleInput) (*Receipt, error) {
	// A malicious interaction could call back into Settle before the
	// current call commits; fail such nested calls immediately instead
	// of relying on the target denylist alone.
	if !e.settling.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.settling.Store(false)

	if !e.auth.IsAuthorized(caller) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if in.FeeFactor < e.minFeeFactor {
		return nil, fmt.Errorf("%w: %d < %d", ErrFeeFactorTooLow, in.FeeFactor, e.minFeeFactor)
	}
	if len(in.ClearingPrices) != len(in.Tokens) {
		return nil, fmt.Errorf("%w: %d prices for %d tokens",
			ErrMalformedInput, len(in.ClearingPrices), len(in.Tokens))
	}
	for i, p := range in.ClearingPrices {
		if p == nil || p.Sign() <= 0 {
			return nil, fmt.Errorf("%w: clearing price %d is not positive", ErrMalformedInput, i)
		}
	}

	orders, err := DecodeOrders(in.Orders, in.OrderTypes, e.domain)
	if err != nil {
		return nil, err
	}
	now := uint32(e.clock.Now().Unix())
	for i := range orders {
		o := &orders[i]
		if o.ValidTo < now {
			return nil, fmt.Errorf("order %d: %w: validTo %d < %d", i, ErrOrderExpired, o.ValidTo, now)
		}
		if o.ExecutedAmount.Cmp(o.SellAmount) > 0 {
			return nil, fmt.Errorf("order %d: %w: executed amount exceeds sell amount", i, ErrMalformedInput)
		}
	}

	interactions, err := DecodeInteractions(in.Interactions, in.InteractionCount)
	if err != nil {
		return nil, err
	}

	tx := e.ledger.Begin()

	initial := make(map[common.Address]*big.Int, len(in.Tokens))
	for _, token := range in.Tokens {
		initial[token] = tx.BalanceOf(token, e.address)
	}

	// Escrow every order's executed sell amount before any interaction
	// or transfer runs.
	for i := range orders {
		o := &orders[i]
		if err := tx.Transfer(o.SellToken, o.Owner, e.address, o.ExecutedAmount); err != nil {
			return nil, fmt.Errorf("order %d pull: %w: %v", i, ErrTransferFailed, err)
		}
	}

	trades, err := e.executeInteractions(tx, interactions)
	if err != nil {
		return nil, err
	}

	if err := e.verifyPrices(tx, orders, in.ClearingPrices, in.Tokens, trades); err != nil {
		return nil, err
	}

	fees, err := e.clearOrders(tx, orders, in.ClearingPrices, in.Tokens, in.FeeFactor)
	if err != nil {
		return nil, err
	}

	if err := e.reconcileFees(tx, in.Tokens, initial, fees, trades); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	e.log.Info("batch_settled",
		zap.String("operator", caller.Hex()),
		zap.Int("orders", len(orders)),
		zap.Int("interactions", len(interactions)),
		zap.Int("trades", len(trades)),
		zap.Uint64("fee_factor", in.FeeFactor))

	return &Receipt{
		Orders:       len(orders),
		Interactions: len(interactions),
		Trades:       trades,
		Fees:         fees,
	}, nil
}

// verifyPrices runs the configured strategy once per distinct token
// pair traded in the batch.
func (e *Engine) verifyPrices(vs ledger.ValueStore, orders []Order, prices []*big.Int, tokens []common.Address, trades []amm.Trade) error {
	type pair struct{ sell, buy common.Address }
	seen := make(map[pair]struct{})
	for i := range orders {
		o := &orders[i]
		p := pair{o.SellToken, o.BuyToken}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		sellIdx, err := TokenIndex(o.SellToken, tokens)
		if err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
		buyIdx, err := TokenIndex(o.BuyToken, tokens)
		if err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
		if err := e.prices.Verify(vs, o.SellToken, o.BuyToken, prices[sellIdx], prices[buyIdx], trades); err != nil {
			return err
		}
	}
	return nil
}
