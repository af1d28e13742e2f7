package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/session"
	"parley/cmd/security/password"
	"parley/cmd/security/token"
)

// refreshRejected is the exact 401 message clients match on.
const refreshRejected = "Invalid or expired refresh token"

// Sessions is the session manager surface the HTTP layer uses.
type Sessions interface {
	Login(ctx context.Context, identifier, secret string) (session.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (session.Pair, error)
	EndSession(ctx context.Context, raw string) error
	IsAuthenticated(ctx context.Context, accessToken string) (token.Claim, error)
}

// PasswordHasher validates and hashes registration secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Handler wires HTTP auth endpoints to the account store and session manager.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts  identity.Store
	sessions  Sessions
	passwords PasswordHasher
	limiter   *ipLimiter

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the time source used for rate limiting and registration.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts identity.Store, sessions Sessions, passwords PasswordHasher, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil || sessions == nil || passwords == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodySize
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		accounts:  accounts,
		sessions:  sessions,
		passwords: passwords,
		now:       time.Now,
	}
	if cfg.LoginIPRate > 0 {
		h.limiter = newIPLimiter(cfg.LoginIPRate, cfg.LoginIPBurst, cfg.LoginIPIdle)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	p := h.cfg.BasePath
	mux.HandleFunc("POST "+p+"/register", h.handleRegister)
	mux.HandleFunc("POST "+p+"/login", h.handleLogin)
	mux.HandleFunc("POST "+p+"/refresh-token", h.handleRefresh)
	mux.Handle("GET "+p+"/auth", h.Authenticate(http.HandlerFunc(h.handleAuth)))
	mux.HandleFunc("POST "+p+"/logout", h.handleLogout)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := identity.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if err := identity.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_username", "username must be 3-32 characters of letters, digits, '_', '.' or '-'")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong),
			errors.Is(err, password.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "invalid_password", err.Error())
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	acc, err := h.accounts.CreateAccount(ctx, identity.CreateAccountInput{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Interests:    req.Interests,
		Now:          h.now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			field := identity.ConflictField(err)
			if field == "" {
				field = "account"
			}
			writeError(w, http.StatusConflict, field+"_taken", field+" already registered")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid registration")
		default:
			h.log.Error("auth.register.create.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	h.audit(ctx, "auth.register", clientIP(r, h.cfg.TrustProxy), r.UserAgent(), "user_id", acc.ID)
	writeJSON(w, http.StatusCreated, ToAccountResponse(acc))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	identifier := strings.TrimSpace(req.UsernameEmail)
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "usernameEmail and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	if ok, retryAfter := h.limiter.reserve(ip, h.now()); !ok {
		h.audit(ctx, "auth.login.rate_limited", ip, ua, "identifier", identifier)
		writeRateLimited(w, retryAfter)
		return
	}

	pair, err := h.sessions.Login(ctx, identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			h.audit(ctx, "auth.login.failed", ip, ua, "identifier", identifier)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		default:
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	h.audit(ctx, "auth.login.success", ip, ua, "identifier", identifier)
	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshTokenFromRequest(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Refresh token not found")
		return
	}

	ctx := r.Context()
	pair, err := h.sessions.Refresh(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidOrExpired), errors.Is(err, session.ErrSubjectNotFound):
			h.audit(ctx, "auth.refresh.rejected", clientIP(r, h.cfg.TrustProxy), r.UserAgent())
			writeError(w, http.StatusUnauthorized, "invalid_token", refreshRejected)
		case errors.Is(err, session.ErrStoreUnavailable):
			h.log.Warn("auth.refresh.store_unavailable", "err", err)
			writeError(w, http.StatusInternalServerError, "store_unavailable", "please retry later")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	h.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	claim, ok := ClaimFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "You do not have access")
		return
	}

	acc, err := h.accounts.GetByID(r.Context(), claim.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.lookup.fail", "user_id", claim.Subject, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ToAccountResponse(acc))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	access := accessTokenFromRequest(r)
	if access == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "You do not have access")
		return
	}

	ctx := r.Context()
	claim, err := h.sessions.IsAuthenticated(ctx, access)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	if err := h.sessions.EndSession(ctx, access); err != nil {
		h.writeAuthError(w, err)
		return
	}

	// The refresh token is best effort: an already invalid one needs no revocation.
	if refresh := refreshTokenFromRequest(r); refresh != "" {
		if err := h.sessions.EndSession(ctx, refresh); err != nil && !errors.Is(err, session.ErrInvalidOrExpired) {
			h.log.Warn("auth.logout.refresh_revoke.fail", "user_id", claim.Subject, "err", err)
		}
	}

	h.audit(ctx, "auth.logout", clientIP(r, h.cfg.TrustProxy), r.UserAgent(), "user_id", claim.Subject)
	h.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidOrExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized", "You do not have access")
	case errors.Is(err, session.ErrStoreUnavailable):
		h.log.Warn("auth.session.store_unavailable", "err", err)
		writeError(w, http.StatusInternalServerError, "store_unavailable", "please retry later")
	default:
		h.log.Error("auth.session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
