package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusOK, "Test successful", map[string]string{"key": "value"})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if !resp.Success || resp.Code != http.StatusOK || resp.Message != "Test successful" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "Test error", errors.New("order_id is required"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if resp.Success || resp.Error != "order_id is required" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestErrorResponseWithoutError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusUnauthorized, "Invalid API key", nil)

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if _, ok := raw["error"]; ok {
		t.Errorf("Expected error field to be omitted, got %v", raw["error"])
	}
}

func TestText(t *testing.T) {
	w := httptest.NewRecorder()

	Text(w, http.StatusOK, "OK")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", body)
	}
	if contentType := w.Header().Get("Content-Type"); contentType != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected Content-Type '%s'", contentType)
	}
}

func BenchmarkSuccessResponse(b *testing.B) {
	data := map[string]string{"test": "data"}

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		Success(w, http.StatusOK, "Benchmark test", data)
	}
}
