package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"bought/internal/transport"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		http.Error(w, "webhook not configured", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	challenge, ok := s.verifier.VerifyWebhook(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		slog.WarnContext(r.Context(), "Webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleWebhookDelivery always answers 200: the provider retries
// non-200 responses, and a malformed payload will not get better on
// the second attempt. Processing happens after the acknowledgement.
func (s *Server) handleWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	go s.processWebhook(body)
}

func (s *Server) processWebhook(body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	messages, err := transport.ParseWebhook(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse webhook payload", "error", err)
		return
	}
	for _, msg := range messages {
		if s.allowedSender != "" && msg.From != s.allowedSender {
			slog.InfoContext(ctx, "Ignoring message from unknown sender", "from", msg.From)
			continue
		}
		if s.dispatch == nil {
			continue
		}
		s.dispatch(ctx, msg)
	}
}
