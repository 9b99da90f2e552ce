// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the HTTP control plane: health, transaction
// queries, and watch-list management.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/metrics"
	"github.com/ava-labs/solwatch/scanner"
	"github.com/ava-labs/solwatch/types"
)

// defaultLimit is applied when a transaction query carries no usable
// limit parameter.
const defaultLimit = 100

// Scanner is the engine surface the control plane drives.
type Scanner interface {
	AddWatched(ctx context.Context, address string, label *string) error
	RemoveWatched(ctx context.Context, address string) error
	WatchedAddresses() []string
	Transactions(ctx context.Context, address string, limit, offset int64) ([]types.Transaction, error)
}

var _ Scanner = (*scanner.Engine)(nil)

// envelope wraps every response body.
type envelope struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
}

// addressRequest is the POST /addresses body.
type addressRequest struct {
	Address string  `json:"address"`
	Label   *string `json:"label"`
}

type Server struct {
	scanner Scanner
	log     *zap.Logger
	httpSrv *http.Server
}

func NewServer(sc Scanner, port int, logger *zap.Logger) *Server {
	s := &Server{
		scanner: sc,
		log:     logger,
	}
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/addresses", s.handleListAddresses).Methods(http.MethodGet)
	r.HandleFunc("/addresses", s.handleAddAddress).Methods(http.MethodPost)
	r.HandleFunc("/addresses/{address}", s.handleRemoveAddress).Methods(http.MethodDelete)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", port),
		Handler: r,
	}
	return s
}

// Handler exposes the route table so tests can serve it without
// binding the configured port.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) ListenAndServe() error {
	s.log.Info("api server listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, "healthy")
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), defaultLimit)
	offset := parseInt(q.Get("offset"), 0)

	txs, err := s.scanner.Transactions(r.Context(), q.Get("address"), limit, offset)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	s.ok(w, txs)
}

func (s *Server) handleListAddresses(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string][]string{"addresses": s.scanner.WatchedAddresses()})
}

func (s *Server) handleAddAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.scanner.AddWatched(r.Context(), req.Address, req.Label); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.ok(w, "Address added successfully")
}

func (s *Server) handleRemoveAddress(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if err := s.scanner.RemoveWatched(r.Context(), address); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.ok(w, "Address removed successfully")
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.respond(w, http.StatusOK, data, nil)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, nil, &msg)
}

func (s *Server) respond(w http.ResponseWriter, status int, data any, errMsg *string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := envelope{
		Success:   errMsg == nil,
		Data:      data,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

// parseInt returns fallback for absent or malformed values rather
// than rejecting the request.
func parseInt(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
