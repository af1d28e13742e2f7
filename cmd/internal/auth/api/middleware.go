package authapi

import (
	"context"
	"net/http"

	"parley/cmd/security/token"
)

type claimKey struct{}

// Authenticate admits requests carrying a live access token (cookie or
// bearer header) and stores its claim in the request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessTokenFromRequest(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "You do not have access")
			return
		}
		claim, err := h.sessions.IsAuthenticated(r.Context(), raw)
		if err != nil {
			h.writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaim(r.Context(), claim)))
	})
}

// WithClaim returns ctx carrying claim.
func WithClaim(ctx context.Context, claim token.Claim) context.Context {
	return context.WithValue(ctx, claimKey{}, claim)
}

// ClaimFromContext returns the claim stored by Authenticate.
func ClaimFromContext(ctx context.Context) (token.Claim, bool) {
	c, ok := ctx.Value(claimKey{}).(token.Claim)
	return c, ok
}
