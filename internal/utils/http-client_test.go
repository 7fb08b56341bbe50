package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProxyURLCredentials(t *testing.T) {
	tests := []struct {
		cfg  HTTPClientConfig
		want string
	}{
		{HTTPClientConfig{}, ""},
		{HTTPClientConfig{ProxyURL: "http://proxy:8080"}, "http://proxy:8080"},
		{HTTPClientConfig{ProxyURL: "http://proxy:8080", ProxyUsername: "alice"}, "http://alice@proxy:8080"},
		{HTTPClientConfig{ProxyURL: "http://proxy:8080", ProxyUsername: "alice", ProxyPassword: "pw"}, "http://alice:pw@proxy:8080"},
	}
	for _, tt := range tests {
		got := ""
		if u := tt.cfg.proxyURL(); u != nil {
			got = u.String()
		}
		if got != tt.want {
			t.Errorf("proxyURL(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestSlowBodyOutlivesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			w.Write([]byte("chunk"))
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{Timeout: 100 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 64)
	total := 0
	for {
		n, err := resp.Body.Read(buf)
		total += n
		if err != nil {
			break
		}
	}
	if total != 30 {
		t.Errorf("expected the whole 30 byte body past the header timeout, got %d bytes", total)
	}
}

func TestHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPClient(HTTPClientConfig{Timeout: 50 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if resp, err := client.Do(req); err == nil {
		resp.Body.Close()
		t.Fatal("expected a response header timeout")
	}
}
