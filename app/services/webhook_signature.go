package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// WebhookVerifier authenticates xMoney webhook deliveries. The
// signature is HMAC-SHA256 over the canonical form of the payload with
// the signature field removed.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// CanonicalPayload re-serializes the raw JSON body with object keys
// sorted at every nesting level and the top-level signature field
// stripped. encoding/json marshals map keys in sorted order, so
// decoding into maps and marshaling back yields the canonical form.
func CanonicalPayload(body []byte) ([]byte, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	delete(payload, "signature")
	return json.Marshal(payload)
}

// Sign computes the hex-encoded signature for a raw payload.
func (v *WebhookVerifier) Sign(body []byte) (string, error) {
	canonical, err := CanonicalPayload(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks the delivery's signature in constant time. A malformed
// body or missing signature fails verification.
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return errors.New("missing signature")
	}
	expected, err := v.Sign(body)
	if err != nil {
		return err
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return errors.New("malformed signature")
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, want) {
		return errors.New("signature mismatch")
	}
	return nil
}
