package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// markerHandler returns an http.Handler that writes a specific marker string.
func markerHandler(marker string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", marker)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, marker)
	})
}

func newTestTransport(t *testing.T, f *fakes, opts ...Option) *HTTPTransport {
	t.Helper()
	api := NewHandler(f.services(), WithHandlerLogger(discardLogger()))
	opts = append([]Option{
		WithAddr("127.0.0.1:0"),
		WithLogger(discardLogger()),
		WithExtraHandler(markerHandler("admin")),
	}, opts...)
	return NewHTTPTransport(api, opts...)
}

func TestRouting_TableDriven(t *testing.T) {
	f := newFakes()
	f.sessions.StoreSimple("alice", "sid-1")
	transport := newTestTransport(t, f, WithHealthChecker(NewHealthChecker(nil, nil, nil, "v-test")))
	srv := httptest.NewServer(transport.routes())
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"admin", http.MethodGet, "/admin/api/sessions", http.StatusOK, "admin"},
		{"health", http.MethodGet, "/health", http.StatusOK, `"version":"v-test"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "go_goroutines"},
		{"gateway", http.MethodGet, "/api/v1/sessions/alice/cookie", http.StatusOK, `"cookie":"sid-1"`},
		{"wrong method", http.MethodGet, "/api/v1/auth/login", http.StatusMethodNotAllowed, ""},
		{"unknown", http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body %q does not contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestRouting_GatewayMiddleware(t *testing.T) {
	f := newFakes()
	transport := newTestTransport(t, f, WithStoreSizes(StoreSizes{Sessions: func() int { return 1 }}))
	srv := httptest.NewServer(transport.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{"user":"bob","cookie":"c"}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing on gateway response")
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`pbx_gate_requests_total{route="sessions",status="ok"} 1`,
		"pbx_gate_sessions 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestTransport_StartAndShutdown(t *testing.T) {
	transport := newTestTransport(t, newFakes())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5 seconds after cancel")
	}
}

func TestTransport_CloseBeforeStart(t *testing.T) {
	if err := newTestTransport(t, newFakes()).Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
