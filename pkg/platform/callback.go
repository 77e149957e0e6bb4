package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the HMAC of the callback body.
const SignatureHeader = "X-Signature"

// CallbackPayload is the body a webhook target POSTs back when it finishes
// asynchronously. The execution id ties it to the original dispatch.
type CallbackPayload struct {
	ExecutionID string                 `json:"_execution_id"`
	Status      string                 `json:"status,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback's signature against the raw body using
// a constant-time comparison. Verification fails closed: a missing secret
// or missing signature rejects the callback.
func VerifySignature(secret, signature string, body []byte) error {
	if secret == "" {
		return fmt.Errorf("callback verification is not configured")
	}
	if signature == "" {
		return fmt.Errorf("callback signature is missing")
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("callback signature mismatch")
	}
	return nil
}

// ParseCallback verifies and decodes a callback body. The signature is
// checked against the raw bytes before any JSON parsing.
func ParseCallback(secret, signature string, body []byte) (*CallbackPayload, error) {
	if err := VerifySignature(secret, signature, body); err != nil {
		return nil, err
	}
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode callback payload: %w", err)
	}
	if payload.ExecutionID == "" {
		return nil, fmt.Errorf("callback payload is missing %s", FieldExecutionID)
	}
	return &payload, nil
}
