package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	httpmw "github.com/mihaimyh/gotier/middleware/http"
	"github.com/mihaimyh/gotier/pkg/auth"
	"github.com/mihaimyh/gotier/pkg/billing"
	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	maxRequestBody = 64 * 1024

	rateLimitScopeCheckout = "checkout"

	unsubscribeMessage = "Successfully unsubscribed"
	unsubscribeNote    = "Your subscription will end at the end of the current billing period"
)

// Handler serves the interactive JSON API
type Handler struct {
	config  Config
	origins map[string]struct{}
}

type patchUserRequest struct {
	StripeSessionData *sessionData `json:"stripeSessionData"`
	AccessLevel       string       `json:"accessLevel"`
	StripeCustomerID  string       `json:"stripeCustomerId"`
}

type sessionData struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	LineItems     []struct {
		Price *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"line_items"`
}

type unsubscribeRequest struct {
	StripeCustomerID string `json:"stripeCustomerId"`
}

// UnsubscribeResponse is returned after a successful cancellation
type UnsubscribeResponse struct {
	Message                string             `json:"message"`
	CancelledSubscriptions []string           `json:"cancelledSubscriptions"`
	NewAccessLevel         gotier.AccessLevel `json:"newAccessLevel"`
	Note                   string             `json:"note"`
}

type checkoutRequest struct {
	Tier string `json:"tier"`
	// ID is accepted for clients that post the catalog product id
	ID string `json:"id"`
}

type checkoutResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// GetUser returns the caller's row, creating a free one on first call
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// PatchUser sets the caller's access level from checkout session data or
// the legacy {accessLevel, stripeCustomerId} body. Webhook reconciliation
// remains the authority; this path only gives the return page immediate
// feedback.
func (h *Handler) PatchUser(w http.ResponseWriter, r *http.Request) {
	var req patchUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		level      gotier.AccessLevel
		customerID string
	)
	if req.StripeSessionData != nil {
		priceIDs := make([]string, 0, len(req.StripeSessionData.LineItems))
		for _, item := range req.StripeSessionData.LineItems {
			if item.Price != nil {
				priceIDs = append(priceIDs, item.Price.ID)
			}
		}
		resolved, err := gotier.ResolveTier(priceIDs, h.config.Prices)
		if err != nil {
			h.config.Logger.Warn("tier resolution failed", gotier.F("error", err))
		}
		level = resolved
		if gotier.IsValidCustomerID(req.StripeSessionData.CustomerID) {
			customerID = req.StripeSessionData.CustomerID
		}
	} else {
		parsed, err := gotier.ParseAccessLevel(req.AccessLevel)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, gotier.CodeInvalidAccessLevel, "Invalid access level")
			return
		}
		level = parsed
		if req.StripeCustomerID != "" {
			if !gotier.IsValidCustomerID(req.StripeCustomerID) {
				writeFailure(w, http.StatusBadRequest, gotier.CodeInvalidCustomerID, "Invalid Stripe customer ID")
				return
			}
			customerID = req.StripeCustomerID
		}
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if customerID != "" && customerID != user.StripeCustomerID {
		if err := h.config.Store.LinkExternalCustomerID(ctx, user.ID, customerID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.config.Store.SetAccessLevel(ctx, user.ID, level); err != nil {
		h.writeError(w, r, err)
		return
	}
	if level != user.AccessLevel {
		h.config.Metrics.RecordTierChange(user.AccessLevel, level)
	}
	h.config.Logger.Info("access level set from client session data",
		gotier.F("user_id", user.ID),
		gotier.F("access_level", level),
		gotier.F("authoritative", false),
	)

	updated, err := h.config.Store.FindByID(ctx, user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Unsubscribe cancels the caller's subscriptions at period end and
// downgrades them to free.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := httpmw.IdentityFromContext(r.Context())

	var req unsubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !gotier.IsValidCustomerID(req.StripeCustomerID) {
		writeFailure(w, http.StatusBadRequest, gotier.CodeInvalidCustomerID, "Invalid Stripe customer ID")
		return
	}

	ctx := r.Context()
	user, err := h.config.Store.FindByEmail(ctx, id.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user.StripeCustomerID != req.StripeCustomerID {
		h.config.Logger.Warn("unsubscribe rejected: customer id mismatch", gotier.F("user_id", user.ID))
		writeFailure(w, http.StatusForbidden, codeForbidden, "Customer ID does not match authenticated user")
		return
	}
	if user.AccessLevel == gotier.AccessFree {
		writeFailure(w, http.StatusBadRequest, codeAlreadyFree, "You are already on the free plan")
		return
	}

	cancelled, err := h.config.Billing.CancelSubscriptions(ctx, user.StripeCustomerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.config.Store.SetAccessLevel(ctx, user.ID, gotier.AccessFree); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.config.Metrics.RecordTierChange(user.AccessLevel, gotier.AccessFree)
	h.config.Logger.Info("user unsubscribed",
		gotier.F("user_id", user.ID),
		gotier.F("customer_id", user.StripeCustomerID),
		gotier.F("cancelled", len(cancelled)),
	)

	writeJSON(w, http.StatusOK, UnsubscribeResponse{
		Message:                unsubscribeMessage,
		CancelledSubscriptions: cancelled,
		NewAccessLevel:         gotier.AccessFree,
		Note:                   unsubscribeNote,
	})
}

// CreateCheckout creates an embedded checkout session for a paid tier
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	id, _ := httpmw.IdentityFromContext(r.Context())

	if !h.sameOrigin(r) {
		writeFailure(w, http.StatusForbidden, codeForbiddenOrigin, "Forbidden: invalid request origin")
		return
	}
	if !isJSON(r) {
		writeFailure(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, "Invalid content type. Expected application/json")
		return
	}

	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tier := req.Tier
	if tier == "" {
		tier = req.ID
	}
	level, err := gotier.ParseAccessLevel(tier)
	if _, sold := h.config.Prices.PriceFor(level); err != nil || !sold {
		writeFailure(w, http.StatusBadRequest, codeInvalidTier, "Invalid tier or missing price configuration")
		return
	}

	ctx := r.Context()
	key := id.UserID
	if key == "" {
		key = id.Email
	}
	allowed, err := h.config.CheckoutLimiter.TryAcquire(ctx, "checkout:"+key)
	if err != nil {
		h.config.Logger.Warn("checkout rate limiter unavailable", gotier.F("error", err))
		allowed = true
	}
	if !allowed {
		h.config.Metrics.RecordRateLimited(rateLimitScopeCheckout)
		writeFailure(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests. Please try again later.")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	secret, err := h.config.Billing.CreateSession(ctx, billing.CheckoutRequest{
		Level:      level,
		UserID:     user.ID,
		Email:      user.Email,
		CustomerID: user.StripeCustomerID,
	})
	if err != nil {
		if errors.Is(err, billing.ErrInvalidTier) {
			writeFailure(w, http.StatusBadRequest, codeInvalidTier, "Invalid tier or missing price configuration")
			return
		}
		h.config.Logger.Error("checkout session creation failed",
			gotier.F("user_id", user.ID),
			gotier.F("error", err),
		)
		writeFailure(w, http.StatusBadGateway, gotier.CodeUpstream, "Failed to create checkout session. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{ClientSecret: secret})
}

// SessionStatus returns the read-only view of a checkout session
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeFailure(w, http.StatusBadRequest, codeMissingSession, "session_id is required")
		return
	}

	status, err := h.config.Billing.SessionStatus(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrSessionNotFound) {
			writeFailure(w, http.StatusNotFound, gotier.CodeNotFound, "Checkout session not found")
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// currentUser loads the caller's row, creating it when missing
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*gotier.User, bool) {
	id, ok := httpmw.IdentityFromContext(r.Context())
	if !ok || id.Email == "" {
		h.writeError(w, r, gotier.ErrAuthRequired)
		return nil, false
	}

	user, created, err := gotier.EnsureUser(r.Context(), h.config.Store, profileOf(id))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if created {
		h.config.Logger.Info("user row created on first request", gotier.F("user_id", user.ID))
	}
	return user, true
}

func profileOf(id auth.Identity) gotier.Profile {
	return gotier.Profile{Email: id.Email, Name: id.Name, Image: id.Picture}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, codeInvalidBody, "Invalid JSON body")
		return false
	}
	return true
}
