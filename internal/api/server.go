// Package api exposes the sandbox over HTTP: session lifecycle, faucet,
// quotes, swaps, order-book views and a WebSocket stream of rebuilt books.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/market"
	"deepbook-sandbox/internal/observability"
	"deepbook-sandbox/internal/swap"
)

// Options configure the server.
type Options struct {
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Server routes API requests to the session engine and the market service.
type Server struct {
	engine  *swap.Engine
	markets *market.Service
	opts    Options
}

// NewServer creates the API server.
func NewServer(engine *swap.Engine, markets *market.Service, opts Options) *Server {
	return &Server{
		engine:  engine,
		markets: markets,
		opts:    opts.withDefaults(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/session/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/session/{id}/reset", s.handleResetSession)
	mux.HandleFunc("GET /api/session/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /api/balance/{id}", s.handleBalance)
	mux.HandleFunc("POST /api/faucet", s.handleFaucet)
	mux.HandleFunc("POST /api/swap", s.handleSwap)
	mux.HandleFunc("POST /api/swap/quote", s.handleQuote)
	mux.HandleFunc("GET /api/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/orderbook", s.handleOrderbook)
	mux.HandleFunc("GET /api/orderbook/depth", s.handleDepth)
	mux.HandleFunc("GET /api/orderbook/stream", s.handleStream)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	return s.logRequests(mux)
}

// logRequests logs every request with its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)
		s.opts.Logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", lw.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes through so the stream endpoint can upgrade the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.engine.CreateSession()
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.ResetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"swaps":      sess.Swaps,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"balances":   sess.Balances,
	})
}

type faucetRequest struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Amount    uint64 `json:"amount"`
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid json body")
		return
	}
	sess, err := s.engine.Faucet(req.SessionID, req.Token, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type swapRequest struct {
	SessionID string `json:"session_id"`
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	AmountIn  uint64 `json:"amount_in"`
}

type swapResponse struct {
	Swap  domain.SwapRecord `json:"swap"`
	Quote domain.Quote      `json:"quote"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid json body")
		return
	}
	rec, q, err := s.engine.ExecuteSwap(r.Context(), req.SessionID, req.FromToken, req.ToToken, req.AmountIn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, swapResponse{Swap: rec, Quote: q})
}

type quoteRequest struct {
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	AmountIn  uint64 `json:"amount_in"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid json body")
		return
	}
	q, err := s.engine.Quote(r.Context(), req.FromToken, req.ToToken, req.AmountIn)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	type marketView struct {
		domain.Market
		Checkpoint uint64  `json:"checkpoint,omitempty"`
		BestBid    float64 `json:"best_bid,omitempty"`
		BestAsk    float64 `json:"best_ask,omitempty"`
	}

	var out []marketView
	for _, m := range s.markets.Markets() {
		view := marketView{Market: m}
		if book, ok := s.markets.Book(m.ID); ok {
			view.Checkpoint = book.Checkpoint
			view.BestBid = book.BestBid()
			view.BestAsk = book.BestAsk()
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// handleDepth serves the top N levels per side with human-readable prices.
func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromQuery(w, r)
	if !ok {
		return
	}

	levels := 10
	if raw := r.URL.Query().Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeBadRequest(w, "levels must be a positive integer")
			return
		}
		levels = n
	}

	type depthLevel struct {
		Price    float64 `json:"price"`
		Quantity uint64  `json:"quantity"`
		Orders   int     `json:"orders"`
	}
	top := func(side []domain.PriceLevel) []depthLevel {
		out := make([]depthLevel, 0, levels)
		for i := 0; i < len(side) && i < levels; i++ {
			out = append(out, depthLevel{
				Price:    float64(side[i].Tick) / book.PriceDivisor(),
				Quantity: side[i].Quantity,
				Orders:   side[i].Orders,
			})
		}
		return out
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  book.MarketID,
		"checkpoint": book.Checkpoint,
		"mid_price":  book.MidPrice(),
		"spread_bps": book.SpreadBps(),
		"bids":       top(book.Bids),
		"asks":       top(book.Asks),
	})
}

func (s *Server) bookFromQuery(w http.ResponseWriter, r *http.Request) (*domain.BookSnapshot, bool) {
	marketID := r.URL.Query().Get("market")
	if marketID == "" {
		s.writeBadRequest(w, "market query parameter is required")
		return nil, false
	}
	if _, ok := s.markets.Market(marketID); !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown market "+marketID))
		return nil, false
	}
	book, ok := s.markets.Book(marketID)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("book not built yet for "+marketID))
		return nil, false
	}
	return book, true
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, swap.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, swap.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, swap.ErrBookUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, swap.ErrRouting):
		status = http.StatusNotFound
	case errors.Is(err, swap.ErrNoLiquidity):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
