package platform

import (
	"encoding/json"
	"testing"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	body := []byte(`{"_execution_id":"exec-1","status":"completed"}`)
	sig := Sign("topsecret", body)

	if err := VerifySignature("topsecret", sig, body); err != nil {
		t.Fatalf("expected a valid signature to verify: %v", err)
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"_execution_id":"exec-1","status":"completed"}`)
	sig := Sign("topsecret", body)

	tampered := []byte(`{"_execution_id":"exec-1","status":"failed"}`)
	if err := VerifySignature("topsecret", sig, tampered); err == nil {
		t.Fatal("expected a tampered body to fail verification")
	}
}

func TestVerifySignatureFailsClosed(t *testing.T) {
	body := []byte(`{}`)

	if err := VerifySignature("", Sign("", body), body); err == nil {
		t.Error("expected verification without a secret to fail")
	}
	if err := VerifySignature("topsecret", "", body); err == nil {
		t.Error("expected verification without a signature to fail")
	}
}

func TestParseCallback(t *testing.T) {
	payload := CallbackPayload{
		ExecutionID: "exec-1",
		Status:      "completed",
		Output:      map[string]interface{}{"rows": float64(3)},
	}
	body, _ := json.Marshal(payload)

	parsed, err := ParseCallback("topsecret", Sign("topsecret", body), body)
	if err != nil {
		t.Fatalf("ParseCallback failed: %v", err)
	}
	if parsed.ExecutionID != "exec-1" || parsed.Status != "completed" {
		t.Errorf("unexpected payload: %+v", parsed)
	}
	if parsed.Output["rows"] != float64(3) {
		t.Errorf("expected output to round-trip, got %v", parsed.Output)
	}
}

func TestParseCallbackRequiresExecutionID(t *testing.T) {
	body := []byte(`{"status":"completed"}`)
	if _, err := ParseCallback("topsecret", Sign("topsecret", body), body); err == nil {
		t.Fatal("expected a callback without an execution id to be rejected")
	}
}
