package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/cmd/identity"
	authapi "parley/cmd/internal/auth/api"
	v1 "parley/shared/contracts/realtime/v1"
)

// Handler serves the chat REST endpoints. Every route requires an access token.
type Handler struct {
	log          *slog.Logger
	store        Store
	accounts     identity.Store
	authenticate func(http.Handler) http.Handler

	basePath     string
	maxBodyBytes int64
	now          func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBasePath sets the route prefix (default "/api/chat").
func WithBasePath(p string) HandlerOption {
	return func(h *Handler) {
		h.basePath = "/" + strings.Trim(p, "/")
	}
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler wires a chat Handler. authenticate must place a token.Claim in
// the request context (authapi.Handler.Authenticate does).
func NewHandler(log *slog.Logger, store Store, accounts identity.Store, authenticate func(http.Handler) http.Handler, opts ...HandlerOption) (*Handler, error) {
	if store == nil || accounts == nil || authenticate == nil {
		return nil, errors.New("chat: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:          log,
		store:        store,
		accounts:     accounts,
		authenticate: authenticate,
		basePath:     "/api/chat",
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

// Register wires chat routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	p := h.basePath
	mux.Handle("POST "+p+"/sendMessage", h.authenticate(http.HandlerFunc(h.handleSend)))
	mux.Handle("GET "+p+"/messages/{userId}", h.authenticate(http.HandlerFunc(h.handleConversation)))
	mux.Handle("GET "+p+"/list-chat", h.authenticate(http.HandlerFunc(h.handleThreads)))
	mux.Handle("PATCH "+p+"/editMessage/{messageId}", h.authenticate(http.HandlerFunc(h.handleEdit)))
	mux.Handle("DELETE "+p+"/deleteMessage/{messageId}", h.authenticate(http.HandlerFunc(h.handleDelete)))
}

type sendRequest struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Image      string `json:"image,omitempty"`
}

type editRequest struct {
	Message string `json:"message"`
}

type threadResponse struct {
	User        authapi.AccountResponse `json:"user"`
	LastMessage v1.ChatMessage          `json:"lastMessage"`
}

// ToWire converts a stored message to the shared wire shape.
func ToWire(m Message) v1.ChatMessage {
	return v1.ChatMessage{
		ID:        m.ID,
		Sender:    m.SenderID,
		Receiver:  m.ReceiverID,
		Message:   m.Body,
		Image:     m.Image,
		Timestamp: m.SentAt,
		Read:      m.Read,
		IsDeleted: m.IsDeleted,
	}
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req sendRequest
	if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	receiver := strings.TrimSpace(req.ReceiverID)
	if receiver == "" {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "receiverId is required")
		return
	}

	ctx := r.Context()
	ok, err := h.accounts.Exists(ctx, receiver)
	if err != nil {
		h.log.Error("chat.send.lookup.fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !ok {
		authapi.WriteError(w, http.StatusNotFound, "receiver_not_found", "Receiver not found")
		return
	}

	m, err := h.store.Create(ctx, CreateInput{
		SenderID:   caller,
		ReceiverID: receiver,
		Body:       req.Message,
		Image:      req.Image,
		Now:        h.now(),
	})
	if err != nil {
		h.writeStoreError(w, "chat.send", err)
		return
	}
	authapi.WriteJSON(w, http.StatusCreated, ToWire(m))
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	peer := strings.TrimSpace(r.PathValue("userId"))
	if peer == "" {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}

	msgs, err := h.store.Conversation(r.Context(), callerID(r), peer)
	if err != nil {
		h.writeStoreError(w, "chat.messages", err)
		return
	}
	out := make([]v1.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToWire(m))
	}
	authapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	threads, err := h.store.Threads(ctx, callerID(r))
	if err != nil {
		h.writeStoreError(w, "chat.list", err)
		return
	}

	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		acc, err := h.accounts.GetByID(ctx, t.PeerID)
		if err != nil {
			if identity.IsNotFound(err) {
				continue
			}
			h.log.Error("chat.list.lookup.fail", "peer_id", t.PeerID, "err", err)
			authapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		out = append(out, threadResponse{User: authapi.ToAccountResponse(acc), LastMessage: ToWire(t.Last)})
	}
	authapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := authapi.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	m, err := h.store.Edit(r.Context(), EditInput{
		ID:       r.PathValue("messageId"),
		EditorID: callerID(r),
		Body:     req.Message,
		Now:      h.now(),
	})
	if err != nil {
		h.writeStoreError(w, "chat.edit", err)
		return
	}
	authapi.WriteJSON(w, http.StatusOK, ToWire(m))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Delete(r.Context(), r.PathValue("messageId"), callerID(r))
	if err != nil {
		h.writeStoreError(w, "chat.delete", err)
		return
	}
	authapi.WriteJSON(w, http.StatusOK, ToWire(m))
}

func (h *Handler) writeStoreError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		authapi.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid message")
	case errors.Is(err, ErrNotFound):
		authapi.WriteError(w, http.StatusNotFound, "not_found", "Message not found")
	case errors.Is(err, ErrForbidden):
		authapi.WriteError(w, http.StatusForbidden, "forbidden", "You do not have access")
	default:
		h.log.Error(event+".fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func callerID(r *http.Request) string {
	c, _ := authapi.ClaimFromContext(r.Context())
	return c.Subject
}
