package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
)

// Dispatcher turns a raw front-end message into a response payload.
// It never fails; errors come back as an error-shaped payload.
type Dispatcher interface {
	Handle(ctx context.Context, raw []byte) interface{}
}

// MessageHandler serves the request/response message channel
type MessageHandler struct {
	dispatcher Dispatcher
	logger     arbor.ILogger
}

func NewMessageHandler(dispatcher Dispatcher, logger arbor.ILogger) *MessageHandler {
	return &MessageHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleMessage handles POST /api/message. Action failures are part of
// the payload, so any dispatched message answers 200.
func (h *MessageHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := readMessage(w, r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := h.dispatcher.Handle(r.Context(), body)
	if err := WriteJSON(w, http.StatusOK, payload); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write message response")
	}
}
