package reseller

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

// Withdrawal amounts arrive as decimal cedi strings, same as top-ups.
type withdrawalRequest struct {
	Amount        string `json:"amount" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required"`
	BankCode      string `json:"bank_code" validate:"required"`
}

func (h *Handler) Profit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	summary, err := h.svc.GetSummary(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.svc.ListEntries(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"balance":           summary.Balance,
		"balance_formatted": money.Format(summary.Balance),
		"total_earned":      summary.TotalEarned,
		"entries":           entries,
	})
}

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if req.AccountNumber == "" || req.BankCode == "" {
		response.BadRequest(w, "account_number and bank_code are required")
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		response.BadRequest(w, "invalid amount")
		return
	}

	wd, err := h.svc.RequestWithdrawal(r.Context(), userID, amount, req.AccountNumber, req.BankCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "amount must be greater than zero")
		case errors.Is(err, ErrInsufficientProfit):
			response.Conflict(w, "insufficient profit balance")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, wd)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.svc.ListWithdrawals(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"withdrawals": out})
}

func (h *Handler) VerifyWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	wd, err := h.svc.VerifyWithdrawal(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			response.NotFound(w, "withdrawal not found")
			return
		}
		response.InternalError(w)
		return
	}
	if wd.UserID != userID {
		response.NotFound(w, "withdrawal not found")
		return
	}
	response.OK(w, wd)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireReseller())
	r.Get("/profit", h.Profit)
	r.Post("/withdrawals", h.CreateWithdrawal)
	r.Get("/withdrawals", h.ListWithdrawals)
	r.Get("/withdrawals/{reference}", h.VerifyWithdrawal)
	return r
}
