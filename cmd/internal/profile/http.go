package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/cmd/identity"
	"parley/cmd/identity/ids"
	authapi "parley/cmd/internal/auth/api"
)

// Accounts is the slice of identity.Store the handler needs.
type Accounts interface {
	GetByID(ctx context.Context, id string) (identity.Account, error)
	UpsertProfile(ctx context.Context, id string, in identity.ProfileInput, mode identity.ProfileMode) (identity.Profile, error)
	UpdateInterests(ctx context.Context, id string, interests []string) ([]string, error)
}

// Handler serves profile and interest routes. Every route requires an access token.
type Handler struct {
	log          *slog.Logger
	accounts     Accounts
	authenticate func(http.Handler) http.Handler

	basePath     string
	maxBodyBytes int64
	now          func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBasePath sets the route prefix (default "/api/user").
func WithBasePath(p string) HandlerOption {
	return func(h *Handler) {
		h.basePath = "/" + strings.Trim(p, "/")
	}
}

// WithClock overrides the time source for updated_at and birthday checks.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler wires a profile Handler. authenticate must place a token.Claim in
// the request context.
func NewHandler(log *slog.Logger, accounts Accounts, authenticate func(http.Handler) http.Handler, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil || authenticate == nil {
		return nil, errors.New("profile: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:          log,
		accounts:     accounts,
		authenticate: authenticate,
		basePath:     "/api/user",
		maxBodyBytes: 64 << 10,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires profile routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	p := h.basePath
	mux.Handle("GET "+p+"/profile", h.authenticate(http.HandlerFunc(h.handleOwn)))
	mux.Handle("GET "+p+"/profile/{id}", h.authenticate(http.HandlerFunc(h.handleByID)))
	mux.Handle("POST "+p+"/profile", h.authenticate(h.upsert(identity.ProfileCreate)))
	mux.Handle("PUT "+p+"/profile", h.authenticate(h.upsert(identity.ProfileUpdate)))
	mux.Handle("PUT "+p+"/interests", h.authenticate(http.HandlerFunc(h.handleInterests)))
}

type profileRequest struct {
	DisplayName string    `json:"display_name"`
	Gender      string    `json:"gender"`
	Birthday    time.Time `json:"birthday"`
	Height      float64   `json:"height"`
	Weight      float64   `json:"weight"`
	ImageURL    string    `json:"image_url,omitempty"`

	// Derived from birthday; accepted so older clients can send them.
	Horoscope string `json:"horoscope,omitempty"`
	Zodiac    string `json:"zodiac,omitempty"`
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

func (h *Handler) handleOwn(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, callerID(r))
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !ids.Valid(id) {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid user id")
		return
	}
	h.writeProfile(w, r, id)
}

func (h *Handler) writeProfile(w http.ResponseWriter, r *http.Request, id string) {
	acc, err := h.accounts.GetByID(r.Context(), id)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("profile.get.fail", "user_id", id, "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if err != nil || acc.Profile == nil {
		authapi.WriteError(w, http.StatusNotFound, "not_found", "Profile not found for this user")
		return
	}
	authapi.WriteJSON(w, http.StatusOK, authapi.ToProfileResponse(*acc.Profile))
}

func (h *Handler) upsert(mode identity.ProfileMode) http.Handler {
	status := http.StatusOK
	if mode == identity.ProfileCreate {
		status = http.StatusCreated
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
			authapi.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}

		caller := callerID(r)
		p, err := h.accounts.UpsertProfile(r.Context(), caller, identity.ProfileInput{
			DisplayName: req.DisplayName,
			Gender:      identity.Gender(req.Gender),
			Birthday:    req.Birthday,
			Height:      req.Height,
			Weight:      req.Weight,
			ImageURL:    req.ImageURL,
			Now:         h.now(),
		}, mode)
		if err != nil {
			h.writeStoreError(w, "profile.upsert", err)
			return
		}
		h.log.Info("profile.upsert", "user_id", caller, "created", mode == identity.ProfileCreate)
		authapi.WriteJSON(w, status, authapi.ToProfileResponse(p))
	})
}

func (h *Handler) handleInterests(w http.ResponseWriter, r *http.Request) {
	var req interestsRequest
	if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Interests == nil {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "interests is required")
		return
	}

	out, err := h.accounts.UpdateInterests(r.Context(), callerID(r), req.Interests)
	if err != nil {
		h.writeStoreError(w, "profile.interests", err)
		return
	}
	authapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, event string, err error) {
	var (
		nf  identity.NotFoundError
		bad identity.OpError
	)
	switch {
	case errors.As(err, &bad) && errors.Is(bad.Kind, identity.ErrInvalidInput):
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", bad.Msg)
	case identity.IsConflict(err):
		authapi.WriteError(w, http.StatusConflict, "profile_exists", "Profile already exists")
	case errors.As(err, &nf) && nf.Resource == "profile":
		authapi.WriteError(w, http.StatusNotFound, "not_found", "Profile not found for this user")
	case identity.IsNotFound(err):
		authapi.WriteError(w, http.StatusNotFound, "not_found", "User not found")
	default:
		h.log.Error(event+".fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func callerID(r *http.Request) string {
	c, _ := authapi.ClaimFromContext(r.Context())
	return c.Subject
}
