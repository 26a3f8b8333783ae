package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dataplug/dataplug-api/internal/middleware"
	"github.com/dataplug/dataplug-api/internal/pkg/money"
	"github.com/dataplug/dataplug-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Top-up amounts arrive as decimal cedi strings ("50.00"); everything past
// this point is int64 pesewas.
type topUpRequest struct {
	Amount string `json:"amount"`
	Email  string `json:"email"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"balance":           balance,
		"balance_formatted": money.Format(balance),
	})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"transactions": txs})
}

func (h *Handler) InitializeTopUp(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		response.BadRequest(w, "email is required")
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		response.BadRequest(w, "invalid amount")
		return
	}

	init, err := h.svc.InitializeTopUp(r.Context(), userID, amount, req.Email)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, "amount must be greater than zero")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"authorization_url": init.AuthorizationURL,
		"access_code":       init.AccessCode,
		"reference":         init.Reference,
	})
}

func (h *Handler) VerifyTopUp(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reference := chi.URLParam(r, "reference")
	topup, err := h.svc.VerifyTopUp(r.Context(), reference)
	if err != nil {
		switch {
		case errors.Is(err, ErrTopUpNotFound):
			response.NotFound(w, "topup not found")
		case errors.Is(err, ErrAmountMismatch):
			response.Conflict(w, "paid amount does not match topup amount")
		default:
			response.InternalError(w)
		}
		return
	}
	if topup.UserID != userID {
		response.NotFound(w, "topup not found")
		return
	}

	response.OK(w, topup)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Post("/topup/initialize", h.InitializeTopUp)
	r.Get("/topup/verify/{reference}", h.VerifyTopUp)
	return r
}
