package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"contestjudge/internal/common/http/health"

	"github.com/gin-gonic/gin"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		deps       map[string]health.Pinger
		wantStatus int
		wantQueue  string
	}{
		{
			name:       "all healthy",
			deps:       map[string]health.Pinger{"mysql": pinger{}, "queue": pinger{}},
			wantStatus: http.StatusOK,
			wantQueue:  "ok",
		},
		{
			name:       "queue down",
			deps:       map[string]health.Pinger{"mysql": pinger{}, "queue": pinger{err: errors.New("dial refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantQueue:  "dial refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/healthz", health.Handler(tt.deps))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Checks["queue"] != tt.wantQueue || body.Checks["mysql"] != "ok" {
				t.Fatalf("checks = %v", body.Checks)
			}
		})
	}
}
