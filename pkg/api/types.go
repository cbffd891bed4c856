package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SettleRequest is the payload for POST /api/v1/settle. Orders and
// Interactions carry the raw wire encodings as 0x-prefixed hex.
type SettleRequest struct {
	Operator         common.Address   `json:"operator"`         // submitting operator address
	Orders           hexutil.Bytes    `json:"orders"`           // concatenated fixed-stride order records
	OrderTypes       []uint8          `json:"orderTypes"`       // per order; omit for all sell orders
	Interactions     hexutil.Bytes    `json:"interactions"`     // length-prefixed interaction records
	InteractionCount int              `json:"interactionCount"` // number of records in Interactions
	ClearingPrices   []*hexutil.Big   `json:"clearingPrices"`   // parallel to Tokens
	Tokens           []common.Address `json:"tokens"`           // strictly ascending
	FeeFactor        uint64           `json:"feeFactor"`
}

// ==============================
// REST Response Types
// ==============================

// SettleResponse summarizes a committed settlement batch.
type SettleResponse struct {
	Status       string            `json:"status"` // "settled"
	Orders       int               `json:"orders"`
	Interactions int               `json:"interactions"`
	Trades       []TradeInfo       `json:"trades"`
	Fees         map[string]string `json:"fees"` // token address -> collected fee (decimal)
}

// TradeInfo represents one swap executed during interaction processing.
type TradeInfo struct {
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`  // decimal string
	AmountOut string `json:"amountOut"` // decimal string
}

// BalanceInfo represents one holder's balance in one token.
type BalanceInfo struct {
	Token   string `json:"token"`
	Holder  string `json:"holder"`
	Balance string `json:"balance"` // decimal string
}

// DomainInfo describes the deployment clients must sign orders against.
type DomainInfo struct {
	ChainID       string `json:"chainId"`
	EngineAddress string `json:"engineAddress"`
	Separator     string `json:"separator"` // 0x-prefixed 32-byte hash
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["settlements", "balances:0x..."]
}

// SettlementUpdate is broadcast after every committed batch.
type SettlementUpdate struct {
	Type         string            `json:"type"` // "settlement"
	Operator     string            `json:"operator"`
	Orders       int               `json:"orders"`
	Interactions int               `json:"interactions"`
	Trades       []TradeInfo       `json:"trades"`
	Fees         map[string]string `json:"fees"`
	Timestamp    int64             `json:"timestamp"` // Unix milliseconds
}
