package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Webhook-Signature"

// Webhook events
const (
	EventFlagUpdated = "flag.updated"
	EventFlagDeleted = "flag.deleted"
	EventFlagsReset  = "flags.reset"
)

// WebhookPayload is a change notification from the evaluation service
type WebhookPayload struct {
	Event     string   `json:"event"`
	FlagKeys  []string `json:"flag_keys"`
	Timestamp string   `json:"timestamp"`
}

const maxWebhookBody = 1 << 20

func (s *Server) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "Failed to read body", http.StatusBadRequest)
		return
	}

	if s.config.WebhookSecret != "" && !verifySignature(s.config.WebhookSecret, r.Header.Get(SignatureHeader), body) {
		s.logger.Warn("webhook rejected", zap.String("reason", "invalid signature"))
		http.Error(rw, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !s.handleEvent(r.Context(), payload) {
		http.Error(rw, "Unknown event", http.StatusBadRequest)
		return
	}

	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func verifySignature(secret, signature string, body []byte) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// handleEvent maps an event to a refresh. A bulk refresh also drops
// deleted flags, so updates and deletions share one path.
func (s *Server) handleEvent(ctx context.Context, payload WebhookPayload) bool {
	switch payload.Event {
	case EventFlagUpdated, EventFlagDeleted:
		s.flags.Refresh(ctx, false)
	case EventFlagsReset:
		s.flags.Refresh(ctx, true)
	default:
		return false
	}

	s.logger.Info("webhook applied",
		zap.String("event", payload.Event),
		zap.Strings("flag_keys", payload.FlagKeys),
	)
	return true
}
