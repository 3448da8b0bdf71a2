package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "scriptsched/pkg/logx"
)

func TestHandlerEndpoints(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, func() any { return map[string]int{"waiting": 2} }, logx.Nop())
	h := s.handler(s.cfg)

	tests := []struct {
		name string
		path string
		code int
	}{
		{name: "healthz", path: "/healthz", code: http.StatusOK},
		{name: "status", path: "/status", code: http.StatusOK},
		{name: "pprof index", path: "/debug/pprof/", code: http.StatusOK},
		{name: "pprof redirect", path: "/debug/pprof", code: http.StatusPermanentRedirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.code {
				t.Fatalf("%s: code = %d, want %d", tt.path, rec.Code, tt.code)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var doc map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if doc["waiting"] != 2 {
		t.Fatalf("status = %v", doc)
	}
}

func TestHandlerToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Token: "s3cret"}, nil, logx.Nop())
	h := s.handler(s.cfg)

	tests := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{name: "missing", target: "/healthz", code: http.StatusUnauthorized},
		{name: "wrong query", target: "/healthz?token=nope", code: http.StatusUnauthorized},
		{name: "query", target: "/healthz?token=s3cret", code: http.StatusOK},
		{name: "bearer", target: "/healthz", header: "Bearer s3cret", code: http.StatusOK},
		{name: "wrong bearer", target: "/healthz", header: "Bearer x", code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	if err := s.Start(context.Background()); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("Start = %v, want ErrInsecureBind", err)
	}
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatalf("no bound address")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatalf("address kept after Stop")
	}
	if err := s.Reconfigure(ctx, Config{}); err != nil {
		t.Fatalf("Reconfigure disabled: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"10.0.0.1:80":    false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
