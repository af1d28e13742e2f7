package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"parley/cmd/internal/auth/session"
	"parley/cmd/security/token"
	v1 "parley/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	wsSubprotocolV1 = "parley.realtime.v1"

	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// Authenticator decides whether a bearer token may open or keep a connection.
type Authenticator interface {
	IsAuthenticated(ctx context.Context, accessToken string) (token.Claim, error)
}

// PresenceToucher records when a user was last seen.
type PresenceToucher interface {
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPresence makes the gateway touch lastActive on connect and disconnect.
func WithPresence(p PresenceToucher) Option {
	return func(g *Gateway) { g.presence = p }
}

// WithMetrics registers gateway collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(g *Gateway) { g.metrics = newMetrics(reg) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// Gateway is the websocket entrypoint for presence and message relay.
//
// It authenticates the handshake, registers the connection, and routes
// status and upsert events to their receiver through the Registry.
type Gateway struct {
	log      *slog.Logger
	cfg      Config
	auth     Authenticator
	registry *Registry
	presence PresenceToucher
	metrics  *metrics
	now      func() time.Time

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewGateway constructs a gateway. A nil registry gets a fresh one.
func NewGateway(log *slog.Logger, cfg Config, auth Authenticator, registry *Registry, opts ...Option) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry()
	}
	cfg = cfg.normalized()

	g := &Gateway{
		log:      log,
		cfg:      cfg,
		auth:     auth,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = newMetrics(nil)
	}

	// websocket.Accept enforces its own origin policy: same-host is ok and
	// cross-origin requires OriginPatterns. Derive them from the allowlist so
	// the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins)
	return g
}

// Registry exposes the connection registry the gateway writes to.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ServeHTTP authenticates and upgrades the request, then runs the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		g.metrics.rejected.WithLabelValues("origin").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	raw := tokenFromRequest(r)
	if raw == "" {
		g.log.Info("ws.reject.auth", "reason", "missing_token", "remote", r.RemoteAddr)
		g.metrics.rejected.WithLabelValues("missing_token").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	claim, err := g.auth.IsAuthenticated(r.Context(), raw)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			g.log.Warn("ws.reject.auth", "reason", "store_unavailable", "remote", r.RemoteAddr)
			g.metrics.rejected.WithLabelValues("store_unavailable").Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		g.log.Info("ws.reject.auth", "reason", "invalid_token", "err", err, "remote", r.RemoteAddr)
		g.metrics.rejected.WithLabelValues("invalid_token").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)
	g.serveConn(r.Context(), conn, claim.Subject, raw)
}

func (g *Gateway) serveConn(parent context.Context, conn *websocket.Conn, userID, raw string) {
	handle, err := NewHandle(g.now())
	if err != nil {
		g.log.Error("ws.handle.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(handle, userID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := g.registry.Register(handle, userID, client); err != nil {
		g.log.Error("ws.register.fail", "handle", handle, "user_id", userID, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	g.metrics.connections.Inc()
	g.log.Info("ws.connect", "handle", handle, "user_id", userID)

	var closeOnce sync.Once

	// shutdown is idempotent. The send queue stays open; Enqueue checks done.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Outbound():
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "handle", handle, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "handle", handle, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	g.touch(ctx, userID)
	g.broadcast(v1.TypeUserConnected, v1.PresencePayload{UserID: userID})

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "handle", handle, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(g.now()) {
			g.log.Info("ws.rate_limited", "handle", handle, "user_id", userID)
			g.metrics.event("inbound", "rate_limited")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.drop(handle, "", "bad_json", err)
			continue readLoop
		}
		if err := env.Validate(); err != nil {
			g.drop(handle, env.Type, "bad_envelope", err)
			continue readLoop
		}

		if g.cfg.RecheckAuth {
			if _, err := g.auth.IsAuthenticated(ctx, raw); err != nil {
				if errors.Is(err, session.ErrStoreUnavailable) {
					g.drop(handle, env.Type, "auth_unavailable", err)
					continue readLoop
				}
				g.log.Info("ws.session.ended", "handle", handle, "user_id", userID, "err", err)
				shutdown(websocket.StatusPolicyViolation, "session ended")
				break readLoop
			}
		}

		switch env.Type {
		case v1.TypeUpdateStatus:
			if err := g.onUpdateStatus(client, env); err != nil {
				g.drop(handle, env.Type, "malformed", err)
			}
		case v1.TypeUpsertMessage:
			if err := g.onUpsertMessage(client, env); err != nil {
				g.drop(handle, env.Type, "malformed", err)
			}
		default:
			g.drop(handle, env.Type, "unsupported", fmt.Errorf("unsupported type: %s", env.Type))
		}
	}

	g.disconnect(ctx, handle)
	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// disconnect retires handle and tells the remaining peers.
func (g *Gateway) disconnect(ctx context.Context, handle string) {
	g.registry.SetLiveness(handle, false)
	userID, ok := g.registry.Unregister(handle)
	if !ok {
		return
	}
	g.metrics.connections.Dec()
	g.log.Info("ws.disconnect", "handle", handle, "user_id", userID)

	g.broadcast(v1.TypeUserDisconnected, v1.PresencePayload{UserID: userID})
	g.broadcast(v1.TypeStatusUpdated, v1.StatusUpdatedPayload{UserID: userID, Status: v1.StatusIdle})
	g.touch(ctx, userID)
}

// ---- handlers ----

func (g *Gateway) onUpdateStatus(from *Client, env v1.Envelope) error {
	var p v1.UpdateStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	receiver := strings.TrimSpace(p.ReceiverID)
	if receiver == "" {
		return errors.New("missing receiverId")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("unknown status: %q", p.Status)
	}

	g.deliver(receiver, v1.TypeStatusUpdated, v1.StatusUpdatedPayload{UserID: from.UserID, Status: p.Status})
	return nil
}

func (g *Gateway) onUpsertMessage(from *Client, env v1.Envelope) error {
	var p v1.UpsertMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	receiver := strings.TrimSpace(p.ReceiverID)
	if receiver == "" {
		return errors.New("missing receiverId")
	}
	if p.Data.Upsert == nil {
		return errors.New("missing data")
	}

	body := v1.Match(p.Data.Upsert,
		func(s v1.SendUpsert) string { return s.Chat.Message },
		func(v1.DeleteUpsert) string { return "" },
		func(u v1.UpdateUpsert) string { return u.Chat.Message },
	)
	if len(body) > maxMessageBytes {
		return fmt.Errorf("message too long: max=%d bytes", maxMessageBytes)
	}

	g.deliver(receiver, v1.TypeMessageUpsert, v1.MessageUpsertPayload{UserID: from.UserID, Data: p.Data})
	g.deliver(receiver, v1.TypeStatusUpdated, v1.StatusUpdatedPayload{UserID: from.UserID, Status: v1.StatusIdle})
	return nil
}

// ---- send helpers ----

// deliver routes one event to userID's live connection. Offline receivers
// are a silent drop.
func (g *Gateway) deliver(userID, typ string, payload any) {
	env, err := g.newEnvelope(typ, payload)
	if err != nil {
		g.log.Error("ws.envelope.fail", "type", typ, "err", err)
		return
	}
	d := g.registry.SendTo(userID, env)
	g.metrics.event(typ, d.String())
	if d != Delivered {
		g.log.Debug("ws.deliver.drop", "type", typ, "receiver_id", userID, "outcome", d.String())
	}
}

func (g *Gateway) broadcast(typ string, payload any) {
	env, err := g.newEnvelope(typ, payload)
	if err != nil {
		g.log.Error("ws.envelope.fail", "type", typ, "err", err)
		return
	}
	delivered, dropped := g.registry.Broadcast(env)
	g.metrics.events.WithLabelValues(typ, Delivered.String()).Add(float64(delivered))
	if dropped > 0 {
		g.metrics.events.WithLabelValues(typ, DroppedQueueFull.String()).Add(float64(dropped))
	}
}

func (g *Gateway) drop(handle, typ, reason string, err error) {
	if typ == "" {
		typ = "unknown"
	}
	g.log.Info("ws.event.drop", "handle", handle, "type", typ, "reason", reason, "err", err)
	g.metrics.event(typ, reason)
}

func (g *Gateway) touch(ctx context.Context, userID string) {
	if g.presence == nil {
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()

	if err := g.presence.TouchLastActive(tctx, userID, g.now()); err != nil {
		g.log.Warn("ws.presence.fail", "user_id", userID, "err", err)
	}
}

// ---- envelope IO ----

func (g *Gateway) newEnvelope(typ string, payload any) (v1.Envelope, error) {
	now := g.now()
	b, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	id, err := NewEnvelopeID(now)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: b,
	}, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func tokenFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("token")); v != "" {
		return v
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// websocket.Accept matches OriginPatterns against the origin host with
// filepath.Match. The origin host keeps its port, so each allowlisted host is
// emitted bare and with ":*". A "*" entry passes through and matches every host.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			seen["*"] = struct{}{}
			continue
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
		seen[h+":*"] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
