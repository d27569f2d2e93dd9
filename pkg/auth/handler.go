package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	DefaultSessionCookie = "gotier_session"
	stateCookie          = "gotier_oauth_state"
	stateTTL             = 10 * time.Minute
)

// HandlerConfig holds the collaborators of the sign-in handler
type HandlerConfig struct {
	Provider ProfileProvider
	Sessions *Sessions
	Store    gotier.Store
	Logger   gotier.Logger

	// CookieName defaults to DefaultSessionCookie
	CookieName string

	// Secure marks cookies Secure (set when served over https)
	Secure bool

	// AfterLogin is the redirect target after a successful sign-in, "/" by default
	AfterLogin string
}

// Handler serves the GitHub login, callback and logout routes
type Handler struct {
	provider   ProfileProvider
	sessions   *Sessions
	store      gotier.Store
	logger     gotier.Logger
	cookieName string
	secure     bool
	afterLogin string
}

// NewHandler creates a sign-in handler
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Provider == nil || cfg.Sessions == nil || cfg.Store == nil {
		return nil, errors.New("auth: provider, sessions and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = &gotier.NoopLogger{}
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	if cfg.AfterLogin == "" {
		cfg.AfterLogin = "/"
	}
	return &Handler{
		provider:   cfg.Provider,
		sessions:   cfg.Sessions,
		store:      cfg.Store,
		logger:     cfg.Logger,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		afterLogin: cfg.AfterLogin,
	}, nil
}

// Routes mounts /github/login, /github/callback and /logout
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/github/login", h.Login)
	r.Get("/github/callback", h.Callback)
	r.Post("/logout", h.Logout)
	return r
}

// Login stores a fresh state and redirects to the provider
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.logger.Error("oauth state generation failed", gotier.F("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// Callback verifies state, resolves the profile, ensures the user row and
// issues the session cookie.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, stateCookie, "/auth")

	if !h.validState(r) {
		h.logger.Warn("oauth callback rejected", gotier.F("error", ErrInvalidState))
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	profile, err := h.provider.ResolveProfile(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth profile resolution failed", gotier.F("error", err))
		status := http.StatusBadGateway
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrNoPrimaryEmail) {
			status = http.StatusUnauthorized
		}
		http.Error(w, "sign-in failed", status)
		return
	}

	user, created, err := gotier.EnsureUser(r.Context(), h.store, profile)
	if err != nil {
		h.logger.Error("sign-in user provisioning failed", gotier.F("error", err))
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}
	if created {
		h.logger.Info("user created on first sign-in", gotier.F("user_id", user.ID))
	}

	token, err := h.sessions.Issue(Identity{
		UserID:  user.ID,
		Email:   user.Email,
		Name:    profile.Name,
		Picture: profile.Image,
	})
	if err != nil {
		h.logger.Error("session issue failed", gotier.F("error", err))
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.afterLogin, http.StatusFound)
}

// Logout clears the session cookie
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.clearCookie(w, h.cookieName, "/")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	got := r.URL.Query().Get("state")
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(got)) == 1
}

func (h *Handler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
