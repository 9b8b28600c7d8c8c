package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Slack rejects replayed requests older than 5 minutes; we do the same.
const signatureMaxAge = 5 * time.Minute

// InboundMessage is a user message extracted from a Slack event payload.
type InboundMessage struct {
	UserID    string
	ChannelID string
	ThreadTS  string
	Text      string
	Timestamp time.Time
}

// WebhookHandler handles Slack Events API callbacks: URL verification
// challenges and inbound message events.
type WebhookHandler struct {
	signingSecret string
	onMessage     func(msg InboundMessage)
	now           func() time.Time
}

// NewWebhookHandler creates a webhook handler. onMessage is called for each
// inbound user message.
func NewWebhookHandler(signingSecret string, onMessage func(InboundMessage)) *WebhookHandler {
	return &WebhookHandler{
		signingSecret: signingSecret,
		onMessage:     onMessage,
		now:           time.Now,
	}
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		User     string `json:"user"`
		BotID    string `json:"bot_id"`
		Channel  string `json:"channel"`
		ThreadTS string `json:"thread_ts"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
	} `json:"event"`
}

// HandleEvent handles POST callbacks from the Slack Events API.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if !h.verifySignature(timestamp, body, signature) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if envelope.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, envelope.Challenge)
		return
	}

	// Respond 200 quickly to avoid Slack retries.
	w.WriteHeader(http.StatusOK)

	if envelope.Type != "event_callback" {
		return
	}
	ev := envelope.Event
	// Ignore bot echoes and message edits/deletes.
	if ev.Type != "message" || ev.Subtype != "" || ev.BotID != "" || ev.User == "" {
		return
	}

	msg := InboundMessage{
		UserID:    ev.User,
		ChannelID: ev.Channel,
		ThreadTS:  ev.ThreadTS,
		Text:      ev.Text,
		Timestamp: parseSlackTS(ev.TS),
	}
	if h.onMessage != nil {
		h.onMessage(msg)
	}
}

// verifySignature checks the request against Slack's signing scheme:
// v0=HMAC-SHA256(secret, "v0:<timestamp>:<body>").
func (h *WebhookHandler) verifySignature(timestamp string, body []byte, signature string) bool {
	if h.signingSecret == "" || signature == "" || timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := h.now().Sub(time.Unix(ts, 0))
	if age > signatureMaxAge || age < -signatureMaxAge {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// parseSlackTS converts a Slack "1726000000.000200" timestamp to time.Time.
func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
