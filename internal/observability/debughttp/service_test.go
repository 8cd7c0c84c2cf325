package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	logx "rimetick/pkg/logx"
)

func waitAddr(t *testing.T, s *Service, want bool) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); (a != "") == want {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server listening=%v never reached", want)
	return ""
}

func get(t *testing.T, url string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServeEndpoints(t *testing.T) {
	t.Parallel()

	var unhealthy atomic.Bool
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, Sources{
		State: func() any { return map[string]int{"tick": 42} },
		Healthy: func() error {
			if unhealthy.Load() {
				return errors.New("tick loop stalled")
			}
			return nil
		},
	}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	base := "http://" + waitAddr(t, s, true)

	if code, _ := get(t, base+"/healthz", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", code)
	}
	auth := http.Header{"Authorization": {"Bearer s3cret"}}
	if code, body := get(t, base+"/healthz", auth); code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}
	unhealthy.Store(true)
	if code, _ := get(t, base+"/healthz?token=s3cret", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: status %d", code)
	}

	code, body := get(t, base+"/debug/state", auth)
	if code != http.StatusOK {
		t.Fatalf("state: status %d", code)
	}
	var state map[string]int
	if err := json.Unmarshal([]byte(body), &state); err != nil || state["tick"] != 42 {
		t.Fatalf("state body %q: %v", body, err)
	}

	s.Reconfigure(Config{Enabled: false})
	waitAddr(t, s, false)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	if err := s.Serve(context.Background()); err == nil {
		t.Fatalf("expected refusal")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q)=%v, want %v", addr, got, want)
		}
	}
}
