package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cookie names are part of the wire contract with browser clients.
const (
	AccessCookieName   = "accessToken"
	RefreshCookieName  = "refreshToken"
	RefreshHeaderName  = "x-refresh-token"
	defaultBasePath    = "/api"
	defaultMaxBodySize = 1 << 20
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// BasePath prefixes every route ("/api" -> "/api/login").
	BasePath     string
	TrustProxy   bool
	MaxBodyBytes int64

	// Login attempts per client IP: a token bucket refilled at LoginIPRate per
	// second holding at most LoginIPBurst tokens.
	LoginIPRate  float64
	LoginIPBurst int
	// LoginIPIdle drops limiter state for IPs that stayed quiet this long.
	LoginIPIdle time.Duration

	CookieSecure   bool
	CookieSameSite http.SameSite
	CookieDomain   string
	CookiePath     string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:       defaultBasePath,
		MaxBodyBytes:   defaultMaxBodySize,
		LoginIPRate:    0.2,
		LoginIPBurst:   10,
		LoginIPIdle:    15 * time.Minute,
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
		CookiePath:     "/",
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		BasePath:       envString("PARLEY_AUTH_BASE_PATH", def.BasePath),
		TrustProxy:     envBool("PARLEY_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("PARLEY_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		LoginIPRate:    envFloat("PARLEY_AUTH_LOGIN_IP_RATE", def.LoginIPRate),
		LoginIPBurst:   envInt("PARLEY_AUTH_LOGIN_IP_BURST", def.LoginIPBurst),
		LoginIPIdle:    envDuration("PARLEY_AUTH_LOGIN_IP_IDLE", def.LoginIPIdle),
		CookieSecure:   envBool("PARLEY_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite: parseSameSite(os.Getenv("PARLEY_AUTH_COOKIE_SAMESITE")),
		CookieDomain:   strings.TrimSpace(os.Getenv("PARLEY_AUTH_COOKIE_DOMAIN")),
		CookiePath:     envString("PARLEY_AUTH_COOKIE_PATH", def.CookiePath),
	}

	// Browsers reject SameSite=None without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	if cfg.BasePath == "/" {
		cfg.BasePath = ""
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
