package params

import (
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Band is a multiplicative acceptance window around a reference ratio:
// a claimed price P is accepted against reference R when
// R*LoNum/LoDen <= P <= R*HiNum/HiDen.
type Band struct {
	LoNum, LoDen uint64
	HiNum, HiDen uint64
}

type Chain struct {
	ID            *big.Int
	DomainTag     string
	EngineAddress common.Address
}

type Engine struct {
	// MinFeeFactor is the smallest accepted fee factor. A fee factor F
	// retains 1/F of every executed amount as protocol fee.
	MinFeeFactor uint64
	// PriceStrategy selects the clearing-price verifier:
	// "pool-band" (AMM reserve check) or "fee-factor".
	PriceStrategy string
	// ReserveBand bounds claimed prices against AMM reserve ratios.
	// TradeBand bounds them against realized interaction trades.
	//
	// The default constants (997/999 and 997/1000) are carried over
	// verbatim from the reference deployment; the asymmetry between the
	// two bands has not been confirmed as intentional. See DESIGN.md.
	ReserveBand Band
	TradeBand   Band
}

type Amm struct {
	Factory      common.Address
	InitCodeHash common.Hash
}

type Node struct {
	DBPath  string
	LogFile string
	APIAddr string
	// Operators are the addresses allowed to submit settlements.
	Operators []string
}

type Config struct {
	Chain  Chain
	Engine Engine
	Amm    Amm
	Node   Node
}

func Default() Config {
	return Config{
		Chain: Chain{
			ID:            big.NewInt(1337),
			DomainTag:     "BatchSettle",
			EngineAddress: common.HexToAddress("0x00000000000000000000000000000000ba7c45e7"),
		},
		Engine: Engine{
			MinFeeFactor:  2,
			PriceStrategy: "fee-factor",
			ReserveBand:   Band{LoNum: 997, LoDen: 999, HiNum: 999, HiDen: 997},
			TradeBand:     Band{LoNum: 997, LoDen: 1000, HiNum: 1000, HiDen: 997},
		},
		Amm: Amm{
			Factory:      common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
			InitCodeHash: common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
		},
		Node: Node{
			DBPath:  "data/ledger",
			LogFile: "data/settled.log",
			APIAddr: ":8547",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Chain.ID = id
		}
	}
	if v := os.Getenv("DOMAIN_TAG"); v != "" {
		cfg.Chain.DomainTag = v
	}
	if v := os.Getenv("ENGINE_ADDRESS"); v != "" {
		cfg.Chain.EngineAddress = common.HexToAddress(v)
	}

	if v := os.Getenv("MIN_FEE_FACTOR"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n >= 2 {
			cfg.Engine.MinFeeFactor = n
		}
	}
	if v := os.Getenv("PRICE_STRATEGY"); v != "" {
		cfg.Engine.PriceStrategy = v
	}

	if v := os.Getenv("AMM_FACTORY"); v != "" {
		cfg.Amm.Factory = common.HexToAddress(v)
	}
	if v := os.Getenv("AMM_INIT_CODE_HASH"); v != "" {
		cfg.Amm.InitCodeHash = common.HexToHash(v)
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("OPERATORS"); v != "" {
		// Example: "0xabc...,0xdef..."
		cfg.Node.Operators = strings.Split(v, ",")
	}

	return cfg
}
