package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calder-eth/batchsettle/params"
	"github.com/calder-eth/batchsettle/pkg/amm"
	"github.com/calder-eth/batchsettle/pkg/api"
	"github.com/calder-eth/batchsettle/pkg/auth"
	"github.com/calder-eth/batchsettle/pkg/crypto"
	"github.com/calder-eth/batchsettle/pkg/engine"
	"github.com/calder-eth/batchsettle/pkg/ledger"
	"github.com/calder-eth/batchsettle/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Ledger (pebble-backed) ----
	led, err := ledger.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer led.Close()
	sugar.Infow("ledger_opened", "path", cfg.Node.DBPath)

	// ---- Signing domain ----
	domain := crypto.NewDomain(cfg.Chain.DomainTag, cfg.Chain.ID, cfg.Chain.EngineAddress)
	sugar.Infow("domain_initialized",
		"chain_id", cfg.Chain.ID.String(),
		"engine_address", cfg.Chain.EngineAddress.Hex(),
		"separator", domain.Separator().Hex())

	// ---- Interaction router ----
	// Pools are declared as comma-separated token pairs; each pair's pool
	// address is derived from the factory and init code hash.
	// Example: POOLS=0xTokenA:0xTokenB,0xTokenC:0xTokenD
	router := amm.NewRouter(cfg.Chain.EngineAddress)
	if pairs := os.Getenv("POOLS"); pairs != "" {
		for _, spec := range strings.Split(pairs, ",") {
			parts := strings.Split(spec, ":")
			if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
				sugar.Fatalw("invalid_pool_spec", "spec", spec)
			}
			pool, err := amm.NewPool(cfg.Amm.Factory,
				common.HexToAddress(parts[0]), common.HexToAddress(parts[1]),
				cfg.Amm.InitCodeHash)
			if err != nil {
				sugar.Fatalw("pool_init_failed", "spec", spec, "err", err)
			}
			router.Register(pool)
			sugar.Infow("pool_registered",
				"address", pool.Addr.Hex(),
				"token0", pool.Token0.Hex(),
				"token1", pool.Token1.Hex())
		}
	}

	// ---- Price verification strategy ----
	var prices engine.PriceVerifier
	switch cfg.Engine.PriceStrategy {
	case "pool-band":
		prices = &engine.ReferencePoolBand{
			Factory:      cfg.Amm.Factory,
			InitCodeHash: cfg.Amm.InitCodeHash,
			ReserveBand:  cfg.Engine.ReserveBand,
			TradeBand:    cfg.Engine.TradeBand,
		}
		sugar.Infow("price_strategy", "strategy", "pool-band")
	default:
		prices = engine.FeeFactorLimit{}
		sugar.Infow("price_strategy", "strategy", "fee-factor")
	}

	// ---- Operator authorization ----
	var authorizer auth.Authorizer = auth.Open{}
	if len(cfg.Node.Operators) > 0 {
		var ops []common.Address
		for _, s := range cfg.Node.Operators {
			if !common.IsHexAddress(s) {
				sugar.Fatalw("invalid_operator_address", "address", s)
			}
			ops = append(ops, common.HexToAddress(s))
		}
		authorizer = auth.NewAllowlist(ops...)
		sugar.Infow("operator_allowlist", "count", len(ops))
	} else {
		sugar.Info("operator allowlist empty - accepting all callers (dev mode)")
	}

	// ---- Settlement engine ----
	eng := engine.New(engine.Config{
		Domain:       domain,
		Ledger:       led,
		Auth:         authorizer,
		Prices:       prices,
		Invoker:      router,
		Clock:        util.RealClock{},
		Logger:       logger,
		MinFeeFactor: cfg.Engine.MinFeeFactor,
	})
	sugar.Infow("engine_initialized", "min_fee_factor", cfg.Engine.MinFeeFactor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(eng, led)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.Node.APIAddr)
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}
