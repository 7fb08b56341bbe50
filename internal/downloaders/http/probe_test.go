package surgehttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/surge/internal/utils"
)

var fastRetry = utils.RetryConfig{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestProbe(t *testing.T) {
	rs := newRangeServer(t, testData(1024))
	rs.etag = `"abc123"`

	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, rs.URL+"/data.bin", utils.RetryConfig{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Size != 1024 {
		t.Errorf("expected size 1024, got %d", res.Size)
	}
	if !res.RangeCapable {
		t.Error("expected range support")
	}
	if res.ETag != `"abc123"` || res.IfRangeValidator() != `"abc123"` {
		t.Errorf("unexpected ETag %q", res.ETag)
	}
	if rs.gets.Load() != 0 {
		t.Errorf("probe must not issue GET requests, saw %d", rs.gets.Load())
	}
}

func TestProbeFollowsRedirects(t *testing.T) {
	rs := newRangeServer(t, testData(10))
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, rs.URL+"/files/final.iso", http.StatusFound)
	})
	front := httptest.NewServer(mux)
	defer front.Close()

	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, front.URL+"/old", utils.RetryConfig{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !strings.HasSuffix(res.URL, "/files/final.iso") {
		t.Errorf("expected final URL after redirect, got %s", res.URL)
	}
}

func TestProbeSizeUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
	}))
	defer server.Close()

	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	_, err := Probe(context.Background(), client, server.URL, utils.RetryConfig{})
	var pe *utils.PreconditionError
	if !errors.As(err, &pe) || !errors.Is(err, utils.ErrSizeUnknown) {
		t.Fatalf("expected size-unknown precondition error, got %v", err)
	}
}

func TestProbeRangeUnsupported(t *testing.T) {
	for _, header := range []string{"", "none"} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header != "" {
				w.Header().Set("Accept-Ranges", header)
			}
			w.Header().Set("Content-Length", "100")
		}))

		client := utils.NewHTTPClient(utils.HTTPClientConfig{})
		_, err := Probe(context.Background(), client, server.URL, utils.RetryConfig{})
		server.Close()

		var pe *utils.PreconditionError
		if !errors.As(err, &pe) || !errors.Is(err, utils.ErrRangeUnsupported) {
			t.Errorf("Accept-Ranges %q: expected range-unsupported precondition error, got %v", header, err)
		}
	}
}

func TestProbeNotFoundIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	_, err := Probe(context.Background(), client, server.URL, fastRetry)
	var te *utils.TransportError
	if !errors.As(err, &te) || !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not-found transport error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestProbeRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "42")
	}))
	defer server.Close()

	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, server.URL, fastRetry)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Size != 42 || calls != 3 {
		t.Errorf("expected size 42 after 3 calls, got size %d after %d calls", res.Size, calls)
	}
}

func TestAcceptsRanges(t *testing.T) {
	tests := []struct {
		values []string
		want   bool
	}{
		{[]string{"bytes"}, true},
		{[]string{"Bytes"}, true},
		{[]string{"none, bytes"}, true},
		{[]string{"none"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		h := http.Header{}
		for _, v := range tt.values {
			h.Add("Accept-Ranges", v)
		}
		if got := acceptsRanges(h); got != tt.want {
			t.Errorf("acceptsRanges(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}
}

func TestWeakETagIsNotAValidator(t *testing.T) {
	res := &Resource{ETag: `W/"abc"`}
	if res.IfRangeValidator() != "" {
		t.Error("weak ETag must not be used for If-Range")
	}
}
