package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req types.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))
		return
	}
	req.AccountID = accountID

	order, err := s.engine.ExecuteOrder(r.Context(), &req)
	if err != nil {
		// A rejected order still returns the persisted row so the caller
		// sees the order number and the reason.
		if order != nil {
			s.writeJSON(w, httpStatus(errors.GetCode(err)), order)
			return
		}
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	orders, err := s.store.ListOrdersByAccount(s.store.DB(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	opt, err := s.store.GetOrderByID(s.store.DB(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if opt.IsNone() {
		s.writeError(w, errors.New(errors.ErrCodeOrderNotFound, "order not found"))
		return
	}

	order := opt.Unwrap()
	if order.AccountID != accountID {
		s.writeError(w, errors.New(errors.ErrCodeForbidden, "order belongs to another account"))
		return
	}

	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCreatePendingOrder(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req types.CreatePendingOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))
		return
	}
	req.AccountID = accountID

	po, err := s.engine.CreatePendingOrder(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, po)
}

func (s *Server) handleListPendingOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	pending, err := s.store.ListPendingOrdersByAccount(s.store.DB(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleCancelPendingOrder(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.engine.CancelPendingOrder(r.Context(), accountID, id); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenPair(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req types.OpenHedgedPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))
		return
	}
	req.AccountID = accountID

	pair, err := s.engine.OpenHedgedPair(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleClosePair(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	legs, err := s.engine.ClosePair(r.Context(), accountID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, legs)
}

func (s *Server) handleCloseContract(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contract, err := s.engine.ClosePosition(r.Context(), accountID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, contracts)
}

func (s *Server) handleMargin(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	metrics, err := s.engine.CalculateMargin(accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	balances, err := s.store.ListBalances(s.store.DB(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.accountID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	txs, err := s.store.ListTransactionsByAccount(s.store.DB(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, txs)
}

// priceQuote is the REST view of a cached tick, with its staleness.
type priceQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	AgeMs     int64     `json:"age_ms"`
}

func (s *Server) handleListPrices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.Snapshot())
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	opt := s.cache.GetTick(symbol)
	if opt.IsNone() {
		s.writeError(w, errors.Newf(errors.ErrCodePriceNotFound, "no price for symbol %s", symbol))
		return
	}

	tick := opt.Unwrap()
	age, _ := s.cache.Age(symbol, time.Now())
	s.writeJSON(w, http.StatusOK, priceQuote{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Timestamp: tick.Timestamp,
		AgeMs:     age.Milliseconds(),
	})
}

func (s *Server) pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid resource id", err)
	}

	return id, nil
}
