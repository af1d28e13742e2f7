package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"parley/cmd/internal/auth/session"
	"parley/cmd/security/token"
	v1 "parley/shared/contracts/realtime/v1"
)

type fakeAuth struct {
	mu      sync.Mutex
	users   map[string]string // token -> user id
	revoked map[string]bool
	down    bool
}

func newFakeAuth(pairs ...string) *fakeAuth {
	f := &fakeAuth{users: map[string]string{}, revoked: map[string]bool{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.users[pairs[i]] = pairs[i+1]
	}
	return f
}

func (f *fakeAuth) IsAuthenticated(_ context.Context, raw string) (token.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		return token.Claim{}, session.ErrStoreUnavailable
	}
	uid, ok := f.users[raw]
	if !ok || f.revoked[raw] {
		return token.Claim{}, session.ErrInvalidOrExpired
	}
	return token.Claim{Subject: uid, Kind: token.KindAccess}, nil
}

func (f *fakeAuth) revoke(raw string) {
	f.mu.Lock()
	f.revoked[raw] = true
	f.mu.Unlock()
}

func (f *fakeAuth) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

type presenceLog struct {
	mu      sync.Mutex
	touches map[string]int
}

func (p *presenceLog) TouchLastActive(_ context.Context, id string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.touches == nil {
		p.touches = map[string]int{}
	}
	p.touches[id]++
	return nil
}

func (p *presenceLog) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.touches[id]
}

type wsEnv struct {
	gw       *Gateway
	auth     *fakeAuth
	presence *presenceLog
	reg      *prometheus.Registry
	srv      *httptest.Server
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OriginRequired = false
	return cfg
}

func newWSEnv(t *testing.T, cfg Config) *wsEnv {
	t.Helper()

	auth := newFakeAuth(
		"tok-alice", "alice",
		"tok-bob", "bob",
		"tok-carol", "carol",
	)
	presence := &presenceLog{}
	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := NewGateway(log, cfg, auth, nil, WithPresence(presence), WithMetrics(reg))

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &wsEnv{gw: gw, auth: auth, presence: presence, reg: reg, srv: srv}
}

func (e *wsEnv) dial(t *testing.T, tok, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(e.srv.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	if tok != "" {
		u.RawQuery = url.Values{"token": {tok}}.Encode()
	}

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

// connect dials as tok and waits for the connection's own userConnected,
// which the gateway sends only after registering it.
func (e *wsEnv) connect(t *testing.T, tok, userID string) *websocket.Conn {
	t.Helper()

	conn, resp, err := e.dial(t, tok, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", tok, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	readUntil(t, conn, func(env v1.Envelope) bool {
		return env.Type == v1.TypeUserConnected && presenceOf(t, env) == userID
	})
	return conn
}

func expectHandshakeStatus(t *testing.T, resp *http.Response, err error, want int) {
	t.Helper()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != want {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected %d, got status=%d err=%v", want, status, err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeRaw(t, conn, b)
}

func writeRaw(t *testing.T, conn *websocket.Conn, b []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func event(t *testing.T, typ string, payload any) v1.Envelope {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return v1.Envelope{V: v1.Version, Type: typ, Payload: b}
}

func readEvent(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

// readUntil discards envelopes until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(v1.Envelope) bool) v1.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEvent(t, conn)
		if match(env) {
			return env
		}
	}
	t.Fatalf("no matching envelope within 20 reads")
	return v1.Envelope{}
}

// nextDirected returns the next envelope that is not a presence broadcast.
func nextDirected(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	return readUntil(t, conn, func(env v1.Envelope) bool {
		return env.Type != v1.TypeUserConnected
	})
}

func presenceOf(t *testing.T, env v1.Envelope) string {
	t.Helper()
	var p v1.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("presence payload: %v", err)
	}
	return p.UserID
}

func statusOf(t *testing.T, env v1.Envelope) v1.StatusUpdatedPayload {
	t.Helper()
	if env.Type != v1.TypeStatusUpdated {
		t.Fatalf("type=%q want %q", env.Type, v1.TypeStatusUpdated)
	}
	var p v1.StatusUpdatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	return p
}

func expectClosed(t *testing.T, conn *websocket.Conn, want websocket.StatusCode) {
	t.Helper()
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(ctx)
		cancel()
		if err != nil {
			if got := websocket.CloseStatus(err); got != want {
				t.Fatalf("close status=%v want %v (err=%v)", got, want, err)
			}
			return
		}
	}
	t.Fatalf("connection stayed open")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGateway_RejectsUnauthenticatedHandshake(t *testing.T) {
	e := newWSEnv(t, testConfig())

	_, resp, err := e.dial(t, "", "")
	expectHandshakeStatus(t, resp, err, http.StatusUnauthorized)

	_, resp, err = e.dial(t, "not-a-token", "")
	expectHandshakeStatus(t, resp, err, http.StatusUnauthorized)

	e.auth.revoke("tok-alice")
	_, resp, err = e.dial(t, "tok-alice", "")
	expectHandshakeStatus(t, resp, err, http.StatusUnauthorized)

	if n := e.gw.Registry().Len(); n != 0 {
		t.Fatalf("registry len=%d want 0", n)
	}
	if got := testutil.ToFloat64(e.gw.metrics.rejected.WithLabelValues("invalid_token")); got != 2 {
		t.Fatalf("invalid_token rejections=%v want 2", got)
	}
}

func TestGateway_StoreUnavailableFailsClosed(t *testing.T) {
	e := newWSEnv(t, testConfig())
	e.auth.setDown(true)

	_, resp, err := e.dial(t, "tok-alice", "")
	expectHandshakeStatus(t, resp, err, http.StatusInternalServerError)

	if got := testutil.ToFloat64(e.gw.metrics.rejected.WithLabelValues("store_unavailable")); got != 1 {
		t.Fatalf("store_unavailable rejections=%v want 1", got)
	}
}

func TestGateway_OriginPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://127.0.0.1"}
	e := newWSEnv(t, cfg)

	_, resp, err := e.dial(t, "tok-alice", "")
	expectHandshakeStatus(t, resp, err, http.StatusForbidden)

	_, resp, err = e.dial(t, "tok-alice", "http://evil.example")
	expectHandshakeStatus(t, resp, err, http.StatusForbidden)

	conn, resp, err := e.dial(t, "tok-alice", e.srv.URL)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("allowed origin dial: %v", err)
	}
	_ = conn.CloseNow()
}

func TestGateway_CrossOriginAllowlist(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		origin  string
	}{
		{"wildcard", []string{"*"}, "http://elsewhere.example:8443"},
		{"host with other port", []string{"https://app.example"}, "http://app.example:3000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AllowedOrigins = tc.allowed
			e := newWSEnv(t, cfg)

			conn, resp, err := e.dial(t, "tok-alice", tc.origin)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				t.Fatalf("cross-origin dial from %s: %v", tc.origin, err)
			}
			_ = conn.CloseNow()
		})
	}
}

func TestGateway_ConnectRegistersAndBroadcasts(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	e.connect(t, "tok-bob", "bob")

	got := readUntil(t, alice, func(env v1.Envelope) bool { return env.Type == v1.TypeUserConnected })
	if uid := presenceOf(t, got); uid != "bob" {
		t.Fatalf("alice saw userConnected for %q want bob", uid)
	}

	if _, ok := e.gw.Registry().FindHandleByUser("alice"); !ok {
		t.Fatalf("alice not registered")
	}
	if _, ok := e.gw.Registry().FindHandleByUser("bob"); !ok {
		t.Fatalf("bob not registered")
	}
	if got := testutil.ToFloat64(e.gw.metrics.connections); got != 2 {
		t.Fatalf("connections gauge=%v want 2", got)
	}
	if e.presence.count("alice") != 1 || e.presence.count("bob") != 1 {
		t.Fatalf("lastActive touches alice=%d bob=%d", e.presence.count("alice"), e.presence.count("bob"))
	}
}

func TestGateway_UpdateStatusGoesToReceiverOnly(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")
	carol := e.connect(t, "tok-carol", "carol")

	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusTyping}))
	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "carol", Status: v1.StatusIdle}))

	got := statusOf(t, nextDirected(t, alice))
	if got.UserID != "bob" || got.Status != v1.StatusTyping {
		t.Fatalf("alice got %+v", got)
	}

	// Events from one connection are handled in order, so carol's first
	// directed event proves she never saw the Typing meant for alice.
	got = statusOf(t, nextDirected(t, carol))
	if got.UserID != "bob" || got.Status != v1.StatusIdle {
		t.Fatalf("carol got %+v", got)
	}
}

func TestGateway_UpsertMessageThenIdle(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	send := v1.UpsertData{Upsert: v1.SendUpsert{Chat: v1.ChatMessage{ID: "m1", Sender: "bob", Receiver: "alice", Message: "hi"}}}
	writeJSON(t, bob, event(t, v1.TypeUpsertMessage, v1.UpsertMessagePayload{ReceiverID: "alice", Data: send}))

	env := nextDirected(t, alice)
	if env.Type != v1.TypeMessageUpsert {
		t.Fatalf("first event type=%q want %q", env.Type, v1.TypeMessageUpsert)
	}
	var p v1.MessageUpsertPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("upsert payload: %v", err)
	}
	s, ok := p.Data.Upsert.(v1.SendUpsert)
	if p.UserID != "bob" || !ok || s.Chat.Message != "hi" || s.Chat.ID != "m1" {
		t.Fatalf("unexpected upsert %+v", p)
	}

	st := statusOf(t, nextDirected(t, alice))
	if st.UserID != "bob" || st.Status != v1.StatusIdle {
		t.Fatalf("follow-up status %+v", st)
	}

	del := v1.UpsertData{Upsert: v1.DeleteUpsert{MessageID: "m1"}}
	writeJSON(t, bob, event(t, v1.TypeUpsertMessage, v1.UpsertMessagePayload{ReceiverID: "alice", Data: del}))

	env = nextDirected(t, alice)
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("upsert payload: %v", err)
	}
	if d, ok := p.Data.Upsert.(v1.DeleteUpsert); !ok || d.MessageID != "m1" {
		t.Fatalf("unexpected delete upsert %+v", p.Data.Upsert)
	}
}

func TestGateway_MalformedEventsAreDropped(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	writeRaw(t, bob, []byte("not json"))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"hello","payload":{}}`))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"updateStatus","payload":{"receiverId":"alice","status":"Dancing"}}`))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"updateStatus","payload":{"status":"Typing"}}`))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"upsertMessage","payload":{"receiverId":"alice","data":{"type":"archive","data":"m1"}}}`))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"upsertMessage","payload":{"receiverId":"alice"}}`))
	writeRaw(t, bob, []byte(`{"v":"v1","type":"statusUpdated","payload":{"userId":"alice","status":"Idle"}}`))

	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusTyping}))

	got := statusOf(t, nextDirected(t, alice))
	if got.UserID != "bob" || got.Status != v1.StatusTyping {
		t.Fatalf("alice got %+v, want only the valid event", got)
	}

	if n := testutil.ToFloat64(e.gw.metrics.events.WithLabelValues(v1.TypeUpdateStatus, "malformed")); n != 2 {
		t.Fatalf("malformed updateStatus=%v want 2", n)
	}
	if n := testutil.ToFloat64(e.gw.metrics.events.WithLabelValues(v1.TypeUpsertMessage, "malformed")); n != 2 {
		t.Fatalf("malformed upsertMessage=%v want 2", n)
	}
}

func TestGateway_OfflineReceiverIsSilentDrop(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "ghost", Status: v1.StatusTyping}))
	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusIdle}))

	got := statusOf(t, nextDirected(t, alice))
	if got.UserID != "bob" || got.Status != v1.StatusIdle {
		t.Fatalf("alice got %+v", got)
	}

	dropped := testutil.ToFloat64(e.gw.metrics.events.WithLabelValues(v1.TypeStatusUpdated, DroppedOffline.String()))
	if dropped != 1 {
		t.Fatalf("dropped_offline=%v want 1", dropped)
	}
}

func TestGateway_DisconnectBroadcastsToRemainingPeers(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	_ = bob.Close(websocket.StatusNormalClosure, "bye")

	env := nextDirected(t, alice)
	if env.Type != v1.TypeUserDisconnected || presenceOf(t, env) != "bob" {
		t.Fatalf("alice got %s %s, want userDisconnected bob", env.Type, env.Payload)
	}
	st := statusOf(t, nextDirected(t, alice))
	if st.UserID != "bob" || st.Status != v1.StatusIdle {
		t.Fatalf("disconnect status %+v", st)
	}

	if _, ok := e.gw.Registry().FindHandleByUser("bob"); ok {
		t.Fatalf("bob still registered after disconnect")
	}
	waitFor(t, "disconnect lastActive touch", func() bool { return e.presence.count("bob") == 2 })
	if got := testutil.ToFloat64(e.gw.metrics.connections); got != 1 {
		t.Fatalf("connections gauge=%v want 1", got)
	}
}

func TestGateway_RevokedSessionIsClosedOnNextEvent(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	e.auth.revoke("tok-bob")
	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusTyping}))

	expectClosed(t, bob, websocket.StatusPolicyViolation)

	env := nextDirected(t, alice)
	if env.Type != v1.TypeUserDisconnected {
		t.Fatalf("alice got %q; the revoked session's event must not be relayed", env.Type)
	}
}

func TestGateway_AuthOutageDropsEventsButKeepsConnection(t *testing.T) {
	e := newWSEnv(t, testConfig())

	alice := e.connect(t, "tok-alice", "alice")
	bob := e.connect(t, "tok-bob", "bob")

	e.auth.setDown(true)
	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusTyping}))
	waitFor(t, "auth_unavailable drop", func() bool {
		return testutil.ToFloat64(e.gw.metrics.events.WithLabelValues(v1.TypeUpdateStatus, "auth_unavailable")) == 1
	})
	e.auth.setDown(false)

	writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "alice", Status: v1.StatusIdle}))
	got := statusOf(t, nextDirected(t, alice))
	if got.Status != v1.StatusIdle {
		t.Fatalf("alice got %+v, the event sent during the outage leaked", got)
	}
}

func TestGateway_RateLimitClosesConnection(t *testing.T) {
	cfg := testConfig()
	cfg.RateEvents = 2
	cfg.RateWindow = time.Minute
	e := newWSEnv(t, cfg)

	bob := e.connect(t, "tok-bob", "bob")
	for i := 0; i < 3; i++ {
		writeJSON(t, bob, event(t, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: "ghost", Status: v1.StatusIdle}))
	}

	expectClosed(t, bob, websocket.StatusPolicyViolation)
}

func TestOriginHelpers(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://LocalHost:3000": "localhost",
		"https://app.example":   "app.example",
		"127.0.0.1:8080":        "127.0.0.1",
		"example.org":           "example.org",
		"":                      "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q)=%q want %q", in, got, want)
		}
	}

	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://b.example", "http://a.example:80", "https://b.example"})
	want := []string{"a.example", "a.example:*", "b.example", "b.example:*"}
	if !slices.Equal(got, want) {
		t.Fatalf("patterns=%v want %v", got, want)
	}

	got = deriveOriginPatternsFromAllowedOrigins([]string{"http://b.example", " * "})
	want = []string{"*", "b.example", "b.example:*"}
	if !slices.Equal(got, want) {
		t.Fatalf("wildcard patterns=%v want %v", got, want)
	}
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	r.Header.Set("Authorization", "Bearer h")
	if got := tokenFromRequest(r); got != "q" {
		t.Fatalf("query token=%q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer h")
	if got := tokenFromRequest(r); got != "h" {
		t.Fatalf("header token=%q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := tokenFromRequest(r); got != "" {
		t.Fatalf("empty token=%q", got)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PARLEY_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("PARLEY_WS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PARLEY_WS_SEND_QUEUE", "4")
	t.Setenv("PARLEY_WS_RATE_EVENTS", "nope")
	t.Setenv("PARLEY_WS_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("PARLEY_WS_RECHECK_AUTH", "false")

	cfg := LoadConfigFromEnv()
	if cfg.OriginRequired {
		t.Fatalf("OriginRequired should be false")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.SendQueueSize != wsMinSendQueueSize {
		t.Fatalf("SendQueueSize=%d want %d", cfg.SendQueueSize, wsMinSendQueueSize)
	}
	if cfg.RateEvents != rateLimitEvents {
		t.Fatalf("RateEvents=%d want default", cfg.RateEvents)
	}
	if cfg.HeartbeatEvery != 10*time.Second {
		t.Fatalf("HeartbeatEvery=%v", cfg.HeartbeatEvery)
	}
	if cfg.RecheckAuth {
		t.Fatalf("RecheckAuth should be false")
	}
}
