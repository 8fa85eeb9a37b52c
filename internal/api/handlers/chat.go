package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloo-solutions/helpdesk/internal/api"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/service"
	"github.com/cloo-solutions/helpdesk/internal/telemetry"
	"go.uber.org/zap"
)

// ConversationIDHeader carries the resolved conversation id on chat responses.
const ConversationIDHeader = "X-Conversation-Id"

const (
	msgInvalidJSON    = "Invalid JSON payload."
	msgInvalidBody    = "Invalid request body."
	msgEmptyMessage   = "Message cannot be empty."
	msgNotConfigured  = "AI provider is not configured."
	msgUnexpected     = "An unexpected error occurred while processing the chat request."
	fieldMessage      = "message"
	fieldConversation = "conversationId"
)

type ChatService interface {
	StartChat(ctx context.Context, input service.ChatInput) (*service.ChatSession, error)
}

type ChatHandler struct {
	svc    ChatService
	logger *zap.Logger
}

func NewChatHandler(svc ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{svc: svc, logger: logger}
}

// ValidationDetails lists body problems, split into form-level and per-field errors.
type ValidationDetails struct {
	FormErrors  []string            `json:"formErrors"`
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func (d *ValidationDetails) empty() bool {
	return len(d.FormErrors) == 0 && len(d.FieldErrors) == 0
}

func (d *ValidationDetails) addField(field, msg string) {
	d.FieldErrors[field] = append(d.FieldErrors[field], msg)
}

// ChatRequest is the validated chat body.
type ChatRequest struct {
	Message        string
	ConversationID string
}

// parseChatRequest checks the shape of a decoded payload: an object with a
// string message and an optional string conversationId.
func parseChatRequest(payload any) (ChatRequest, *ValidationDetails) {
	details := &ValidationDetails{FormErrors: []string{}, FieldErrors: map[string][]string{}}

	obj, ok := payload.(map[string]any)
	if !ok {
		details.FormErrors = append(details.FormErrors, fmt.Sprintf("Expected object, received %s", jsonKind(payload)))
		return ChatRequest{}, details
	}

	var req ChatRequest
	switch v := obj[fieldMessage].(type) {
	case string:
		req.Message = v
	case nil:
		if _, present := obj[fieldMessage]; present {
			details.addField(fieldMessage, "Expected string, received null")
		} else {
			details.addField(fieldMessage, "Required")
		}
	default:
		details.addField(fieldMessage, fmt.Sprintf("Expected string, received %s", jsonKind(v)))
	}

	if raw, present := obj[fieldConversation]; present {
		switch v := raw.(type) {
		case string:
			req.ConversationID = v
		default:
			details.addField(fieldConversation, fmt.Sprintf("Expected string, received %s", jsonKind(v)))
		}
	}

	if details.empty() {
		return req, nil
	}
	return req, details
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Chat streams the assistant reply as plain text.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var payload any
	if err := api.DecodeJSON(r, &payload); err != nil {
		if !errors.Is(err, api.ErrBodyTooLarge) {
			h.logger.Warn("chat.invalid_json", zap.Error(err))
		}
		api.DecodeError(w, err, msgInvalidJSON)
		return
	}

	req, details := parseChatRequest(payload)
	if details != nil {
		h.logger.Warn("chat.invalid_body", zap.Any("issues", details))
		api.ErrorWithDetails(w, http.StatusBadRequest, msgInvalidBody, details)
		return
	}

	session, err := h.svc.StartChat(r.Context(), service.ChatInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeStartError(w, r, err)
		return
	}

	h.stream(w, r, session)
}

func (h *ChatHandler) writeStartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		api.Error(w, http.StatusBadRequest, msgEmptyMessage)
	case errors.Is(err, domain.ErrProviderNotConfigured):
		api.Error(w, http.StatusServiceUnavailable, msgNotConfigured)
	default:
		var failure *service.ChatFailure
		if errors.As(err, &failure) {
			w.Header().Set(ConversationIDHeader, failure.ConversationID)
		}
		telemetry.CaptureError(r.Context(), err)
		api.Error(w, http.StatusInternalServerError, msgUnexpected)
	}
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, session *service.ChatSession) {
	stream := session.Stream
	stop := context.AfterFunc(r.Context(), stream.Cancel)
	defer stop()
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set(ConversationIDHeader, session.ConversationID)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() bool {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return false
		}
		return true
	}
	if !flush() {
		return
	}

	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if errors.Is(err, service.ErrReplyCancelled) || r.Context().Err() != nil {
				return
			}
			telemetry.CaptureError(r.Context(), err)
			panic(http.ErrAbortHandler)
		}

		if _, err := io.WriteString(w, fragment); err != nil {
			h.logger.Debug("chat.client_gone",
				zap.String("conversation_id", session.ConversationID),
				zap.Error(err))
			stream.Cancel()
			return
		}
		if !flush() {
			stream.Cancel()
			return
		}
	}
}
