package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

// DefaultSignatureHeader is used when no header is configured
const DefaultSignatureHeader = "X-Webhook-Signature"

// Webhook event names understood by HMACVerifier
const (
	HMACEventPaymentCaptured = "payment.captured"
	HMACEventPaymentFailed   = "payment.failed"
	HMACEventOrderPaid       = "order.paid"
)

// HMACVerifier checks a hex HMAC-SHA256 of the raw body under a shared secret
type HMACVerifier struct {
	secret []byte
	header string
}

// NewHMACVerifier creates a verifier. An empty header falls back to X-Webhook-Signature.
func NewHMACVerifier(secret, header string) *HMACVerifier {
	if header == "" {
		header = DefaultSignatureHeader
	}
	return &HMACVerifier{secret: []byte(secret), header: header}
}

// SignatureHeader implements WebhookVerifier
func (v *HMACVerifier) SignatureHeader() string {
	return v.header
}

type hmacPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorCode        string `json:"error_code"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseEvent implements WebhookVerifier
func (v *HMACVerifier) ParseEvent(payload []byte, signature string) (*Event, error) {
	if !v.Verify(payload, signature) {
		return nil, domain.ErrInvalidSignature
	}

	var p hmacPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	entity := p.Payload.Payment.Entity
	ev := &Event{
		Type:        p.Event,
		OrderID:     entity.OrderID,
		PaymentID:   entity.ID,
		AmountMinor: entity.Amount,
	}

	switch p.Event {
	case HMACEventPaymentCaptured, HMACEventOrderPaid:
		ev.Kind = EventCaptured
	case HMACEventPaymentFailed:
		ev.Kind = EventFailed
		ev.Reason = entity.ErrorDescription
		if ev.Reason == "" {
			ev.Reason = entity.ErrorCode
		}
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	if ev.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", domain.ErrMalformedEvent)
	}
	return ev, nil
}

// Verify compares signature against the expected digest in constant time
func (v *HMACVerifier) Verify(payload []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignPayload returns the hex signature HMACVerifier expects for payload
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
