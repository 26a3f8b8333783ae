package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dataplug/dataplug-api/internal/domain/catalog"
	"github.com/dataplug/dataplug-api/internal/domain/pricing"
	"github.com/dataplug/dataplug-api/internal/domain/wallet"
	"github.com/dataplug/dataplug-api/internal/middleware"
	"github.com/dataplug/dataplug-api/internal/pkg/response"
	"github.com/dataplug/dataplug-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func buyerFromContext(ctx context.Context) Buyer {
	role := middleware.GetRole(ctx)
	reseller := role == middleware.RoleAgent || role == middleware.RoleDealer ||
		role == middleware.RoleSuperDealer || role == middleware.RoleMaster
	return Buyer{UserID: middleware.GetUserID(ctx), Role: role, Reseller: reseller}
}

func (h *Handler) InitializeCheckout(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFromContext(r.Context())
	if buyer.UserID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	o, init, err := h.svc.InitializeCheckout(r.Context(), buyer, req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"order":             o,
		"authorization_url": init.AuthorizationURL,
		"access_code":       init.AccessCode,
	})
}

func (h *Handler) WalletPay(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFromContext(r.Context())
	if buyer.UserID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	o, err := h.svc.WalletPay(r.Context(), buyer, req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	response.Created(w, o)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var cooldownErr *CooldownError
	switch {
	case errors.As(err, &cooldownErr):
		response.ErrorWithDetails(w, http.StatusTooManyRequests, "COOLDOWN_ACTIVE",
			"beneficiary was topped up recently", map[string]string{
				"phone":             cooldownErr.Phone,
				"remaining_seconds": strconv.Itoa(int(cooldownErr.Remaining.Seconds())),
			})
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidQuantity):
		response.BadRequest(w, err.Error())
	case errors.Is(err, pricing.ErrNoPrice):
		response.BadRequest(w, "no pricing available for product")
	case errors.Is(err, catalog.ErrBundleNotFound), errors.Is(err, catalog.ErrCheckerNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, catalog.ErrBundleInactive), errors.Is(err, catalog.ErrOutOfStock):
		response.Conflict(w, err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		response.Conflict(w, "insufficient wallet balance")
	case errors.Is(err, ErrProfitSplitMismatch):
		response.InternalError(w)
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	o, err := h.svc.VerifyTransaction(r.Context(), reference)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(w, "order not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	o, err := h.svc.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(w, "order not found")
			return
		}
		response.InternalError(w)
		return
	}
	if o.UserID != userID && middleware.GetRole(r.Context()) != middleware.RoleAdmin {
		response.NotFound(w, "order not found")
		return
	}

	checkers, err := h.svc.CheckerCredentials(r.Context(), o)
	if err != nil {
		response.InternalError(w)
		return
	}
	if checkers != nil {
		response.OK(w, map[string]interface{}{"order": o, "checkers": checkers})
		return
	}
	response.OK(w, o)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"orders": orders})
}

// Routes are registered directly on the /api/v1 router in main: the wallet
// handler owns the /wallet subtree, and /wallet/pay lives here, so a
// dedicated subrouter cannot hold them all.
func (h *Handler) Register(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/checkout/initialize", h.InitializeCheckout)
		r.Post("/wallet/pay", h.WalletPay)
		r.Get("/transactions/verify/{reference}", h.Verify)
		r.Get("/orders/{reference}", h.Get)
		r.Get("/orders", h.List)
	})
}
