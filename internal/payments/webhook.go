package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a webhook signature is missing or does
// not match. The request must be dropped without touching any state.
var ErrUnauthorized = errors.New("webhook signature verification failed")

// WebhookVerifier authenticates inbound gateway callbacks. The gateway
// signs the key-sorted JSON body with HMAC-SHA512 over a shared secret.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier with the shared IPN secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the provided hex signature against the HMAC of the
// canonicalized body. A missing secret or signature always rejects.
func (v *WebhookVerifier) Verify(rawBody []byte, providedSignature string) error {
	if len(v.secret) == 0 || providedSignature == "" {
		return ErrUnauthorized
	}

	expected, err := v.sign(rawBody)
	if err != nil {
		return err
	}

	provided, err := hex.DecodeString(providedSignature)
	if err != nil {
		return ErrUnauthorized
	}

	if !hmac.Equal(expected, provided) {
		return ErrUnauthorized
	}
	return nil
}

// Signature returns the hex HMAC for a body; used by tests and by the
// outbound resync tooling.
func (v *WebhookVerifier) Signature(rawBody []byte) (string, error) {
	sum, err := v.sign(rawBody)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

func (v *WebhookVerifier) sign(rawBody []byte) ([]byte, error) {
	canonical, err := canonicalizeJSON(rawBody)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// canonicalizeJSON re-encodes the body with object keys sorted, matching
// the representation the gateway signs. encoding/json marshals map keys in
// sorted order, so a decode/encode round trip is the canonical form.
func canonicalizeJSON(rawBody []byte) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	return json.Marshal(payload)
}
