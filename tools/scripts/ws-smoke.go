// Package main provides a CI-friendly end-to-end smoke test for a running
// Parley server.
//
// It validates:
//   - register/login over REST and the bearer-authenticated /auth lookup
//   - handshake with ?token and subprotocol selection
//   - userConnected broadcast
//   - updateStatus relay to the receiver
//   - upsertMessage relay followed by an Idle status
//   - userDisconnected + Idle broadcast when a peer leaves
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "parley/shared/contracts/realtime/v1"
)

const (
	defaultSubprotocol = "parley.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type account struct {
	name  string
	id    string
	token string
}

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL of the server")
		apiPath  = flag.String("api", "/api", "Auth route prefix")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		register = flag.Bool("register", true, "Register the smoke accounts first (409 is tolerated)")
		password = flag.String("password", "smoke test password", "Password for both smoke accounts")
		text     = flag.String("text", "hello parley 👋", "Message text to send")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	api := strings.TrimRight(*baseURL, "/") + "/" + strings.Trim(*apiPath, "/")
	suffix := time.Now().UTC().Format("150405")

	alice := mustAccount(root, api, "smoke_a"+suffix, *password, *register, *timeout)
	bob := mustAccount(root, api, "smoke_b"+suffix, *password, *register, *timeout)
	if *verbose {
		fmt.Printf("accounts: A=%s B=%s\n", alice.id, bob.id)
	}

	wsURL := mustWSURL(*baseURL)

	a := mustConnect(root, alice, wsURL, *origin, *timeout)
	defer closeWS(a.conn)
	a.mustReadPresence(root, v1.TypeUserConnected, alice.id, *timeout)

	b := mustConnect(root, bob, wsURL, *origin, *timeout)
	b.mustReadPresence(root, v1.TypeUserConnected, bob.id, *timeout)
	a.mustReadPresence(root, v1.TypeUserConnected, bob.id, *timeout)

	mustWrite(root, a, v1.TypeUpdateStatus, v1.UpdateStatusPayload{ReceiverID: bob.id, Status: v1.StatusTyping}, *timeout)
	b.mustReadStatus(root, alice.id, v1.StatusTyping, *timeout)

	chat := mustSendChat(root, api, alice, bob.id, *text, *timeout)
	mustWrite(root, a, v1.TypeUpsertMessage, v1.UpsertMessagePayload{
		ReceiverID: bob.id,
		Data:       v1.UpsertData{Upsert: v1.SendUpsert{Chat: chat}},
	}, *timeout)

	env := b.mustReadUntil(root, "messageUpsert", *timeout, func(env v1.Envelope) bool {
		return env.Type == v1.TypeMessageUpsert
	})
	var up v1.MessageUpsertPayload
	if err := json.Unmarshal(env.Payload, &up); err != nil {
		fatalf("unmarshal messageUpsert payload: %v", err)
	}
	if up.UserID != alice.id {
		fatalf("messageUpsert userId mismatch: got=%q want=%q", up.UserID, alice.id)
	}
	send, ok := up.Data.Upsert.(v1.SendUpsert)
	if !ok {
		fatalf("messageUpsert variant mismatch: got=%T", up.Data.Upsert)
	}
	if send.Chat.ID != chat.ID || send.Chat.Message != *text {
		fatalf("messageUpsert chat mismatch: got id=%q text=%q", send.Chat.ID, send.Chat.Message)
	}
	b.mustReadStatus(root, alice.id, v1.StatusIdle, *timeout)

	closeWS(b.conn)
	a.mustReadPresence(root, v1.TypeUserDisconnected, bob.id, *timeout)
	a.mustReadStatus(root, bob.id, v1.StatusIdle, *timeout)

	fmt.Printf("OK: A=%s B=%s message=%s\n", alice.id, bob.id, chat.ID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustWSURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		fatalf("parse base: %v", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

// ---- REST ----

func mustAccount(parent context.Context, api, username, password string, register bool, stepTimeout time.Duration) account {
	if register {
		status, body := doJSON(parent, http.MethodPost, api+"/register", "", map[string]any{
			"email":    username + "@smoke.parley.test",
			"username": username,
			"password": password,
		}, stepTimeout)
		if status != http.StatusCreated && status != http.StatusConflict {
			fatalf("register %s: status=%d body=%s", username, status, body)
		}
	}

	status, body := doJSON(parent, http.MethodPost, api+"/login", "", map[string]any{
		"usernameEmail": username,
		"password":      password,
	}, stepTimeout)
	if status != http.StatusOK {
		fatalf("login %s: status=%d body=%s", username, status, body)
	}
	var pair struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &pair); err != nil || pair.AccessToken == "" {
		fatalf("login %s: bad token response: %s", username, body)
	}

	status, body = doJSON(parent, http.MethodGet, api+"/auth", pair.AccessToken, nil, stepTimeout)
	if status != http.StatusOK {
		fatalf("auth %s: status=%d body=%s", username, status, body)
	}
	var me struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &me); err != nil || me.ID == "" {
		fatalf("auth %s: bad account response: %s", username, body)
	}

	return account{name: username, id: me.ID, token: pair.AccessToken}
}

func mustSendChat(parent context.Context, api string, from account, receiverID, text string, stepTimeout time.Duration) v1.ChatMessage {
	status, body := doJSON(parent, http.MethodPost, api+"/chat/sendMessage", from.token, map[string]any{
		"receiverId": receiverID,
		"message":    text,
	}, stepTimeout)
	if status != http.StatusCreated {
		fatalf("sendMessage: status=%d body=%s", status, body)
	}
	var msg v1.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.ID == "" {
		fatalf("sendMessage: bad response: %s", body)
	}
	return msg
}

func doJSON(parent context.Context, method, target, bearer string, payload any, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(mustJSON(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		fatalf("build %s %s: %v", method, target, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if err != nil {
		fatalf("read %s %s: %v", method, target, err)
	}
	return res.StatusCode, body
}

// ---- WebSocket ----

func mustConnect(parent context.Context, acc account, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	target := wsURL + "?" + url.Values{"token": {acc.token}}.Encode()
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", acc.name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  acc.name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadPresence(parent context.Context, typ, userID string, stepTimeout time.Duration) {
	c.mustReadUntil(parent, typ+"("+userID+")", stepTimeout, func(env v1.Envelope) bool {
		if env.Type != typ {
			return false
		}
		var p v1.PresencePayload
		return json.Unmarshal(env.Payload, &p) == nil && p.UserID == userID
	})
}

func (c *smokeClient) mustReadStatus(parent context.Context, userID string, status v1.Status, stepTimeout time.Duration) {
	c.mustReadUntil(parent, "statusUpdated("+userID+","+string(status)+")", stepTimeout, func(env v1.Envelope) bool {
		if env.Type != v1.TypeStatusUpdated {
			return false
		}
		var p v1.StatusUpdatedPayload
		return json.Unmarshal(env.Payload, &p) == nil && p.UserID == userID && p.Status == status
	})
}

// mustReadUntil skips unrelated traffic; other clients may share the server.
func (c *smokeClient) mustReadUntil(parent context.Context, what string, stepTimeout time.Duration, match func(v1.Envelope) bool) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s (%s): %v", what, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %s (%s)", what, c.name)
			}
			fatalf("connection error while waiting for %s (%s): %v", what, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %s (%s)", what, c.name)
			}
			if match(env) {
				return env
			}
		}
	}
}

func mustWrite(parent context.Context, c *smokeClient, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.name, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed (%s): %v", c.name, err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
