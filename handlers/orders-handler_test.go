package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lucypulova/Elitearn/internal/orders"
	"github.com/lucypulova/Elitearn/pkg/metrics"
)

// One registry-backed instance for the whole package; prometheus collectors
// must not be registered twice.
var testMetrics = metrics.New("handlers_test")

func renderToRecorder(t *testing.T, res orders.ProcessingResult) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h := &Handler{metrics: testMetrics}
	h.renderProcessingResult(c, res)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return w, body
}

func TestRenderProcessingResultDeclined(t *testing.T) {
	w, body := renderToRecorder(t, orders.ProcessingResult{
		OrderID:       1,
		OrderNumber:   "ORD-2026-100007",
		Status:        orders.StatusPaymentFailed,
		Declined:      true,
		DeclineReason: "simulated_decline",
	})

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if body["status"] != "payment_failed" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["reason"] != "simulated_decline" {
		t.Errorf("reason = %v", body["reason"])
	}
}

func TestRenderProcessingResultCancelled(t *testing.T) {
	w, body := renderToRecorder(t, orders.ProcessingResult{
		OrderID:         1,
		Status:          orders.StatusCancelled,
		Cancelled:       true,
		CancelledCode:   http.StatusConflict,
		CancelledReason: "A course in this order is no longer available",
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body["ok"] != false {
		t.Errorf("ok = %v, want false", body["ok"])
	}
}

func TestRenderProcessingResultAwaitingConfirmation(t *testing.T) {
	w, body := renderToRecorder(t, orders.ProcessingResult{
		OrderID:      1,
		OrderNumber:  "ORD-2026-100004",
		Status:       orders.StatusPaymentAuthorizing,
		ClientSecret: "pi_secret_123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["client_secret"] != "pi_secret_123" {
		t.Errorf("client_secret = %v", body["client_secret"])
	}
	if body["provider"] != "stripe" {
		t.Errorf("provider = %v", body["provider"])
	}
}

func TestRenderProcessingResultCompleted(t *testing.T) {
	w, body := renderToRecorder(t, orders.ProcessingResult{
		OrderID:          1,
		OrderNumber:      "ORD-2026-100004",
		Status:           orders.StatusCompleted,
		GrantedCourseIDs: []int64{10, 11},
		Free:             true,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	granted, ok := body["granted_courses"].([]any)
	if !ok || len(granted) != 2 {
		t.Errorf("granted_courses = %v", body["granted_courses"])
	}
	if body["free"] != true {
		t.Errorf("free = %v, want true", body["free"])
	}
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Course Slides.pdf", "Course_Slides.pdf"},
		{"", "file"},
		{"///", "file"},
		{"ok-name_v2.zip", "ok-name_v2.zip"},
	}
	for _, tt := range tests {
		if got := downloadName(tt.in); got != tt.want {
			t.Errorf("downloadName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
