package api

import (
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/calder-eth/batchsettle/pkg/engine"
	"github.com/calder-eth/batchsettle/pkg/ledger"
)

// Server handles REST API and WebSocket connections
type Server struct {
	engine *engine.Engine
	ledger *ledger.Ledger
	router *mux.Router
	hub    *Hub     // WebSocket hub
	batLog *os.File // Settlement audit log file
}

// NewServer creates a new API server
func NewServer(eng *engine.Engine, led *ledger.Ledger) *Server {
	// Open settlement audit log file
	logPath := os.Getenv("SETTLEMENT_LOG_FILE")
	if logPath == "" {
		logPath = "data/settlements.log"
	}

	os.MkdirAll("data", 0755)

	batLog, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[api] WARNING: failed to open settlement log file %s: %v", logPath, err)
		batLog = nil // Continue without audit logging
	} else {
		log.Printf("[api] settlement log: %s", logPath)
	}

	s := &Server{
		engine: eng,
		ledger: led,
		router: mux.NewRouter(),
		hub:    NewHub(),
		batLog: batLog,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Settlement submission
	api.HandleFunc("/settle", s.handleSettle).Methods("POST")

	// Ledger endpoints
	api.HandleFunc("/balances/{token}/{holder}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/accounts/{holder}/balances", s.handleGetBalances).Methods("GET")

	// Deployment metadata
	api.HandleFunc("/domain", s.handleGetDomain).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	// Start WebSocket hub
	go s.hub.Run()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	prices := make([]*big.Int, len(req.ClearingPrices))
	for i, p := range req.ClearingPrices {
		if p == nil {
			respondError(w, http.StatusBadRequest, "missing clearing price", "")
			return
		}
		prices[i] = p.ToInt()
	}

	types := make([]engine.OrderType, len(req.OrderTypes))
	for i, t := range req.OrderTypes {
		types[i] = engine.OrderType(t)
	}
	if len(types) == 0 {
		types = nil
	}

	in := engine.SettleInput{
		Orders:           req.Orders,
		OrderTypes:       types,
		Interactions:     req.Interactions,
		InteractionCount: req.InteractionCount,
		ClearingPrices:   prices,
		Tokens:           req.Tokens,
		FeeFactor:        req.FeeFactor,
	}

	receipt, err := s.engine.Settle(req.Operator, in)
	if err != nil {
		respondError(w, settleStatus(err), "settlement rejected", err.Error())
		return
	}

	trades := make([]TradeInfo, len(receipt.Trades))
	for i, tr := range receipt.Trades {
		trades[i] = TradeInfo{
			TokenIn:   tr.TokenIn.Hex(),
			TokenOut:  tr.TokenOut.Hex(),
			AmountIn:  tr.AmountIn.String(),
			AmountOut: tr.AmountOut.String(),
		}
	}
	fees := make(map[string]string, len(receipt.Fees))
	for token, fee := range receipt.Fees {
		fees[token.Hex()] = fee.String()
	}

	log.Printf("[api] batch settled: operator=%s orders=%d interactions=%d",
		req.Operator.Hex(), receipt.Orders, receipt.Interactions)

	s.logSettlement(map[string]interface{}{
		"operator":     req.Operator.Hex(),
		"orders":       receipt.Orders,
		"interactions": receipt.Interactions,
		"fee_factor":   req.FeeFactor,
		"fees":         fees,
	})

	update := SettlementUpdate{
		Type:         "settlement",
		Operator:     req.Operator.Hex(),
		Orders:       receipt.Orders,
		Interactions: receipt.Interactions,
		Trades:       trades,
		Fees:         fees,
		Timestamp:    time.Now().UnixMilli(),
	}
	s.hub.BroadcastToChannel("settlements", update)

	respondJSON(w, SettleResponse{
		Status:       "settled",
		Orders:       receipt.Orders,
		Interactions: receipt.Interactions,
		Trades:       trades,
		Fees:         fees,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !common.IsHexAddress(vars["token"]) || !common.IsHexAddress(vars["holder"]) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	token := common.HexToAddress(vars["token"])
	holder := common.HexToAddress(vars["holder"])
	balance := s.ledger.BalanceOf(token, holder)

	respondJSON(w, BalanceInfo{
		Token:   token.Hex(),
		Holder:  holder.Hex(),
		Balance: balance.String(),
	})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !common.IsHexAddress(vars["holder"]) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	holder := common.HexToAddress(vars["holder"])

	// Tokens of interest come as a comma-separated query parameter; the
	// ledger is keyed by (token, holder) so there is no cheap "all
	// tokens for holder" scan worth exposing.
	tokensParam := r.URL.Query().Get("tokens")
	if tokensParam == "" {
		respondError(w, http.StatusBadRequest, "missing tokens parameter", "expected ?tokens=0x..,0x..")
		return
	}

	var balances []BalanceInfo
	for _, raw := range strings.Split(tokensParam, ",") {
		if !common.IsHexAddress(raw) {
			respondError(w, http.StatusBadRequest, "invalid token address", raw)
			return
		}
		token := common.HexToAddress(raw)
		balances = append(balances, BalanceInfo{
			Token:   token.Hex(),
			Holder:  holder.Hex(),
			Balance: s.ledger.BalanceOf(token, holder).String(),
		})
	}

	respondJSON(w, balances)
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d := s.engine.Domain()
	respondJSON(w, DomainInfo{
		ChainID:       d.ChainID().String(),
		EngineAddress: d.Contract().Hex(),
		Separator:     d.Separator().Hex(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// settleStatus maps engine errors to HTTP status codes.
func settleStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrMalformedInput),
		errors.Is(err, engine.ErrInvalidSignature),
		errors.Is(err, engine.ErrFeeFactorTooLow),
		errors.Is(err, engine.ErrTokenNotFound),
		errors.Is(err, engine.ErrOrderExpired):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, engine.ErrLimitPriceNotMet),
		errors.Is(err, engine.ErrPriceRejected),
		errors.Is(err, engine.ErrPartialFillNotAllowed),
		errors.Is(err, engine.ErrForbiddenTarget),
		errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrInsufficientFeeCollected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// logSettlement writes a settlement event to the audit log file
func (s *Server) logSettlement(data map[string]interface{}) {
	if s.batLog == nil {
		return // Logging disabled
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     "BATCH_SETTLED",
		"data":      data,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[api] failed to marshal settlement log entry: %v", err)
		return
	}

	// One JSON object per line
	s.batLog.Write(jsonData)
	s.batLog.Write([]byte("\n"))
}
