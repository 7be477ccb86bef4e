// Package handler adapts Telegram webhook deliveries to the conversation
// service. Every delivery gets a 200 response: replies ride back as the
// synchronous sendMessage payload, and malformed or failed invocations get a
// benign plain-text acknowledgment so Telegram never enters a retry storm.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"caller-lookup-bot/internal/conversation"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSecretToken   = "X-Telegram-Bot-Api-Secret-Token"
)

// update is the subset of the Telegram Update payload the bot consumes.
type update struct {
	Message *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// sendMessage is the synchronous webhook reply Telegram executes on our
// behalf, saving an outbound API call.
type sendMessage struct {
	Method string `json:"method"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// SecretGetter supplies the expected webhook secret token.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type conversationService interface {
	Handle(ctx context.Context, in conversation.HandleInput) (conversation.HandleOutput, error)
}

// Handler is the webhook adapter.
type Handler struct {
	svc             conversationService
	secrets         SecretGetter
	secretParamName string

	secretOnce sync.Once
	secret     string
	secretErr  error
}

type Option func(*Handler)

// WithWebhookSecret enables validation of the X-Telegram-Bot-Api-Secret-Token
// header against the parameter stored under paramName. The value is fetched
// on the first delivery and cached for the process lifetime.
func WithWebhookSecret(secrets SecretGetter, paramName string) Option {
	return func(h *Handler) {
		h.secrets = secrets
		h.secretParamName = strings.TrimSpace(paramName)
	}
}

func NewHandler(svc conversationService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: conversation service must not be nil")
	}
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle processes one API Gateway proxy event carrying a Telegram Update.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	status, contentType, body := h.process(ctx, correlationID, req.HTTPMethod, headerValue(req.Headers, headerSecretToken), []byte(req.Body))
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      contentType,
			headerCorrelationID: correlationID,
		},
		Body: body,
	}, nil
}

// ServeHTTP serves the same webhook over plain HTTP for local development.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		payload = nil
	}

	status, contentType, body := h.process(r.Context(), correlationID, r.Method, r.Header.Get(headerSecretToken), payload)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set(headerCorrelationID, correlationID)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (h *Handler) process(ctx context.Context, correlationID, method, secretToken string, payload []byte) (status int, contentType, body string) {
	if method != http.MethodPost {
		return benignAck()
	}

	if h.secretParamName != "" {
		expected, err := h.resolveSecret(ctx)
		if err != nil {
			slog.Error("webhook secret unavailable", "correlation_id", correlationID, "err", err)
			return benignAck()
		}
		if subtle.ConstantTimeCompare([]byte(secretToken), []byte(expected)) != 1 {
			slog.Warn("webhook secret mismatch", "correlation_id", correlationID)
			return http.StatusUnauthorized, "text/plain", "unauthorized"
		}
	}

	var u update
	if err := json.Unmarshal(payload, &u); err != nil {
		return benignAck()
	}
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return benignAck()
	}

	out, err := h.svc.Handle(ctx, conversation.HandleInput{
		ChatID: u.Message.Chat.ID,
		Text:   u.Message.Text,
	})
	if err != nil {
		// Fatal path: the session is at its last durably written state;
		// acknowledge so Telegram does not redeliver in a tight loop.
		slog.Error("conversation handling failed",
			"correlation_id", correlationID, "chat_id", u.Message.Chat.ID, "err", err)
		return benignAck()
	}

	reply, err := json.Marshal(sendMessage{
		Method: "sendMessage",
		ChatID: u.Message.Chat.ID,
		Text:   out.Reply,
	})
	if err != nil {
		slog.Error("marshal reply failed", "correlation_id", correlationID, "err", err)
		return benignAck()
	}
	return http.StatusOK, "application/json", string(reply)
}

// resolveSecret fetches the webhook secret on the first call and caches it
// for the process lifetime.
func (h *Handler) resolveSecret(ctx context.Context) (string, error) {
	h.secretOnce.Do(func() {
		if h.secrets == nil {
			h.secretErr = errors.New("handler: secret getter is nil")
			return
		}
		h.secret, h.secretErr = h.secrets.GetParameter(ctx, h.secretParamName)
	})
	return h.secret, h.secretErr
}

func benignAck() (int, string, string) {
	return http.StatusOK, "text/plain", "OK"
}

// headerValue does a case-insensitive header lookup in the API Gateway
// header map.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
