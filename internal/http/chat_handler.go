package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/chat"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/render"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ChatStateDTO struct {
	OrderID  string               `json:"order_id"`
	State    string               `json:"state"`
	Unread   int                  `json:"unread"`
	Messages []domain.ChatMessage `json:"messages"`
	Pending  []domain.ChatMessage `json:"pending"`
}

type SendMessageRequestDTO struct {
	Content string `json:"content"`
}

type VisibilityRequestDTO struct {
	Visible bool `json:"visible"`
}

func (h *Handler) synchronizer(w http.ResponseWriter, r *http.Request) (*chat.Synchronizer, bool) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order id is required")
		return nil, false
	}
	s, err := h.chats.Get(orderID)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return s, true
}

func chatState(s *chat.Synchronizer) ChatStateDTO {
	confirmed, pending := s.Snapshot()
	if confirmed == nil {
		confirmed = []domain.ChatMessage{}
	}
	if pending == nil {
		pending = []domain.ChatMessage{}
	}
	return ChatStateDTO{
		OrderID:  s.OrderID(),
		State:    s.State().String(),
		Unread:   s.Unread(),
		Messages: confirmed,
		Pending:  pending,
	}
}

// POST /api/v1/chat/{orderID} starts polling for the order.
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.synchronizer(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, chatState(s))
}

func (h *Handler) StopChat(w http.ResponseWriter, r *http.Request) {
	h.chats.Stop(chi.URLParam(r, "orderID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.synchronizer(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, chatState(s))
}

func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.synchronizer(w, r)
	if !ok {
		return
	}
	var req SendMessageRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Send(ctx, req.Content); err != nil {
		if errors.Is(err, chat.ErrStopped) {
			handleError(w, err)
			return
		}
		// the optimistic copy stays visible; the client learns about it
		// through the send_failed event
		respondJSON(w, http.StatusAccepted, chatState(s))
		return
	}
	respondJSON(w, http.StatusOK, chatState(s))
}

func (h *Handler) ChatFragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.synchronizer(w, r)
	if !ok {
		return
	}
	confirmed, pending := s.Snapshot()
	var buf bytes.Buffer
	if err := render.Chat(&buf, s.Sender(), confirmed, pending); err != nil {
		h.logger.Error("failed to render chat", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "render_failed", "failed to render chat")
		return
	}
	respondHTML(w, buf.Bytes())
}

func (h *Handler) SetChatVisibility(w http.ResponseWriter, r *http.Request) {
	s, ok := h.synchronizer(w, r)
	if !ok {
		return
	}
	var req VisibilityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	s.SetVisible(req.Visible)
	respondJSON(w, http.StatusOK, chatState(s))
}
