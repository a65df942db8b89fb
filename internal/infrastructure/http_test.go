package infrastructure

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestStatusServerProbes(t *testing.T) {
	server := NewStatusServer(":0", time.Second, nil)

	recorder := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", recorder.Code)
	}
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	recorder = httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", recorder.Code)
	}

	// no statusFn, no statusz
	recorder = httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/statusz", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("statusz without status fn = %d, want 404", recorder.Code)
	}
}

func TestStatusServerStatusz(t *testing.T) {
	server := NewStatusServer("8205", time.Second, func() any {
		return map[string]int64{"orders_placed": 3}
	})

	if server.server.Addr != ":8205" {
		t.Fatalf("addr = %q, want bare port prefixed with colon", server.server.Addr)
	}

	recorder := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/statusz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("statusz status = %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("content type = %q", got)
	}

	var payload map[string]int64
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode statusz: %v", err)
	}
	if payload["orders_placed"] != 3 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestStatusServerRecoversPanics(t *testing.T) {
	server := NewStatusServer(":0", time.Second, func() any {
		panic("counter snapshot blew up")
	})

	recorder := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/statusz", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("panicking handler status = %d, want 500", recorder.Code)
	}
}
