// Package api is the HTTP boundary. Identity arrives pre-authorized in the
// X-Account-ID header from the gateway in front of this service; handlers
// only re-validate that the caller owns the resources they touch.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-exchange/internal/engine"
	"github.com/rxtech-lab/argo-exchange/internal/hub"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/internal/market/cache"
	"github.com/rxtech-lab/argo-exchange/internal/store"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"go.uber.org/zap"
)

const accountHeader = "X-Account-ID"

type Server struct {
	engine *engine.Engine
	store  *store.Store
	hub    *hub.Hub
	cache  *cache.PriceCache
	logger *logger.Logger
	router *mux.Router
}

func NewServer(eng *engine.Engine, st *store.Store, h *hub.Hub, pc *cache.PriceCache, log *logger.Logger) *Server {
	s := &Server{
		engine: eng,
		store:  st,
		hub:    h,
		cache:  pc,
		logger: log,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/pending-orders", s.handleCreatePendingOrder).Methods(http.MethodPost)
	api.HandleFunc("/pending-orders", s.handleListPendingOrders).Methods(http.MethodGet)
	api.HandleFunc("/pending-orders/{id}", s.handleCancelPendingOrder).Methods(http.MethodDelete)
	api.HandleFunc("/pairs", s.handleOpenPair).Methods(http.MethodPost)
	api.HandleFunc("/pairs/{id}", s.handleClosePair).Methods(http.MethodDelete)
	api.HandleFunc("/contracts/{id}", s.handleCloseContract).Methods(http.MethodDelete)
	api.HandleFunc("/positions", s.handleListPositions).Methods(http.MethodGet)
	api.HandleFunc("/margin", s.handleMargin).Methods(http.MethodGet)
	api.HandleFunc("/balances", s.handleListBalances).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/prices", s.handleListPrices).Methods(http.MethodGet)
	api.HandleFunc("/prices/{symbol}", s.handleGetPrice).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(s.hub, s.logger, w, r)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// accountID extracts the pre-authorized identity from the request.
func (s *Server) accountID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(accountHeader)
	if raw == "" {
		return uuid.Nil, errors.New(errors.ErrCodeMissingParameter, "missing account header")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid account header", err)
	}

	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	s.writeJSON(w, httpStatus(code), errorResponse{Code: int(code), Message: err.Error()})
}

// httpStatus maps error code ranges onto HTTP statuses.
func httpStatus(code errors.ErrorCode) int {
	switch {
	case code >= 100 && code < 200:
		return http.StatusBadRequest
	case code >= 200 && code < 300:
		return http.StatusNotFound
	case code >= 300 && code < 400:
		return http.StatusForbidden
	case code >= 500 && code < 600:
		return http.StatusUnprocessableEntity
	case code >= 600 && code < 700:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
