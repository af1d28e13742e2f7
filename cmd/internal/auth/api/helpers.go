package authapi

import (
	"net"
	"net/http"
	"strings"

	"parley/cmd/identity"
)

// ToAccountResponse converts an identity.Account to its public JSON form.
func ToAccountResponse(a identity.Account) AccountResponse {
	interests := a.Interests
	if interests == nil {
		interests = []string{}
	}
	return AccountResponse{
		ID:         a.ID,
		Email:      a.Email,
		Username:   a.Username,
		Interests:  interests,
		LastActive: a.LastActive,
		CreatedAt:  a.CreatedAt,
		Profile:    toProfileResponse(a.Profile),
	}
}

// ToProfileResponse converts an identity.Profile to its public JSON form.
func ToProfileResponse(p identity.Profile) ProfileResponse {
	return ProfileResponse{
		DisplayName: p.DisplayName,
		Gender:      string(p.Gender),
		Birthday:    p.Birthday,
		Horoscope:   string(p.Horoscope),
		Zodiac:      string(p.Zodiac),
		Height:      p.Height,
		Weight:      p.Weight,
		ImageURL:    p.ImageURL,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProfileResponse(p *identity.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	out := ToProfileResponse(*p)
	return &out
}

// accessTokenFromRequest reads the access token from the accessToken cookie,
// falling back to an "Authorization: Bearer" header.
func accessTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return bearerToken(r)
}

// refreshTokenFromRequest reads the refresh token from the refreshToken cookie,
// falling back to the x-refresh-token header.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.Header.Get(RefreshHeaderName))
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
