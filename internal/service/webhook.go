package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gowa-blast/internal/ws"

	"github.com/rs/zerolog"
)

const (
	SignatureHeader = "X-GOWA-Signature"
	webhookTimeout  = 5 * time.Second
)

// WebhookNotifier posts selected realtime events to an external URL. When a
// secret is set the body is signed with HMAC-SHA256 in SignatureHeader.
type WebhookNotifier struct {
	url    string
	secret []byte
	events map[string]bool
	client *http.Client
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewWebhookNotifier returns nil when url is empty. events lists the event
// names to forward; empty means every event.
func NewWebhookNotifier(url, secret string, events []string, log zerolog.Logger) *WebhookNotifier {
	if url == "" {
		return nil
	}
	var filter map[string]bool
	if len(events) > 0 {
		filter = make(map[string]bool, len(events))
		for _, e := range events {
			filter[e] = true
		}
	}
	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		events: filter,
		client: &http.Client{Timeout: webhookTimeout},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Publish implements ws.RealtimePublisher. Delivery happens in the
// background and is never retried.
func (w *WebhookNotifier) Publish(event ws.WsEvent) {
	if w == nil || (w.events != nil && !w.events[event.Event]) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		w.log.Error().Err(err).Str("event", event.Event).Msg("marshal webhook payload")
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.send(body); err != nil {
			w.log.Warn().Err(err).Str("event", event.Event).Msg("webhook delivery failed")
		}
	}()
}

func (w *WebhookNotifier) send(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Close waits for deliveries in flight.
func (w *WebhookNotifier) Close() {
	if w != nil {
		w.wg.Wait()
	}
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
