package surgehttp

import (
	"bytes"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// rangeServer serves data with full range support and records what it saw.
type rangeServer struct {
	*httptest.Server
	data []byte
	etag string

	heads atomic.Int32
	gets  atomic.Int32
	conns atomic.Int32 // TCP connections accepted

	mu     sync.Mutex
	ranges []string

	// intercept may answer a GET itself by returning true.
	intercept func(w http.ResponseWriter, r *http.Request) bool
}

func newRangeServer(t *testing.T, data []byte) *rangeServer {
	t.Helper()
	rs := &rangeServer{data: data}
	rs.Server = httptest.NewUnstartedServer(http.HandlerFunc(rs.serve))
	rs.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			rs.conns.Add(1)
		}
	}
	rs.Start()
	t.Cleanup(rs.Close)
	return rs
}

func (rs *rangeServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		rs.heads.Add(1)
	case http.MethodGet:
		rs.gets.Add(1)
		rs.mu.Lock()
		rs.ranges = append(rs.ranges, r.Header.Get("Range"))
		rs.mu.Unlock()
		if rs.intercept != nil && rs.intercept(w, r) {
			return
		}
	}
	if rs.etag != "" {
		w.Header().Set("ETag", rs.etag)
	}
	http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(rs.data))
}

func (rs *rangeServer) seenRanges() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

func testData(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 42))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.IntN(256))
	}
	return data
}

// memSink is an in-memory Sink that records flush points.
type memSink struct {
	buf     bytes.Buffer
	flushes []int
	failAt  int // fail the write that would cross this many bytes, 0 disables
}

func (m *memSink) Write(p []byte) (int, error) {
	if m.failAt > 0 && m.buf.Len()+len(p) > m.failAt {
		return 0, errDiskFull
	}
	return m.buf.Write(p)
}

func (m *memSink) Flush() error {
	m.flushes = append(m.flushes, m.buf.Len())
	return nil
}
