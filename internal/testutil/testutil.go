// Package testutil provides common test utilities and helpers for StepFence tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/store"
)

// FixedTime is the reference instant used by tests that need a stable clock.
var FixedTime = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

// FixedNow returns a clock stuck at FixedTime.
func FixedNow() func() time.Time {
	return func() time.Time { return FixedTime }
}

// NewLedger creates an in-memory-backed ledger with a fixed clock and the
// given starting balance.
func NewLedger(t *testing.T, balance int64) (*ledger.Ledger, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SetInt64(store.KeyDiamonds, balance); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}
	led := ledger.New(st)
	led.SetNowFunc(FixedNow())
	return led, st
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response envelope and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}
