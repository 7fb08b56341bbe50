package surgehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tanq16/surge/internal/plan"
	"github.com/tanq16/surge/internal/utils"
)

type FetcherOptions struct {
	Retry utils.RetryConfig

	// RequestRate caps range requests per second across all segments; 0 disables pacing.
	RequestRate float64

	// IfRange is sent as the If-Range validator so that a resource changed
	// mid-download answers with the full body instead of a mismatched range.
	IfRange string

	// Size is the probed length of the resource. A Content-Range reporting a
	// different total means the resource was replaced. 0 skips the check.
	Size int64

	// StallTimeout aborts an attempt that receives no bytes for this long.
	StallTimeout time.Duration

	// Progress receives byte deltas as they are read. A failed attempt
	// reports a negative delta for what it had already reported.
	Progress func(delta int64)
}

// Fetcher retrieves the exact bytes of one segment with a ranged GET.
type Fetcher struct {
	client  utils.HTTPDoer
	opts    FetcherOptions
	limiter *rate.Limiter
}

func NewFetcher(client utils.HTTPDoer, opts FetcherOptions) *Fetcher {
	f := &Fetcher{client: client, opts: opts}
	if opts.RequestRate > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestRate), 1)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, link string, seg plan.Segment) ([]byte, error) {
	if seg.Size() <= 0 {
		return []byte{}, nil
	}
	var body []byte
	err := withRetry(ctx, f.opts.Retry, "http/fetch", func() error {
		var err error
		body, err = f.fetchOnce(ctx, link, seg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, link string, seg plan.Segment) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	touch := func() {}
	if f.opts.StallTimeout > 0 {
		watchdog := time.AfterFunc(f.opts.StallTimeout, func() {
			stalled.Store(true)
			cancel()
		})
		defer watchdog.Stop()
		touch = func() { watchdog.Reset(f.opts.StallTimeout) }
	}

	rangeHeader := seg.RangeHeader()
	fail := func(status int, err error) error {
		if stalled.Load() {
			err = fmt.Errorf("%w: no data for %s", utils.ErrStalled, f.opts.StallTimeout)
		}
		return &utils.TransportError{Op: "fetch", URL: link, Range: rangeHeader, Status: status, Err: err}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", rangeHeader)
	req.Header.Set("Connection", "keep-alive")
	if f.opts.IfRange != "" {
		req.Header.Set("If-Range", f.opts.IfRange)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()
	touch()

	contentRange := resp.Header.Get("Content-Range")
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// some servers answer 200 but still honour the range
		if contentRange == "" {
			if f.opts.IfRange != "" {
				return nil, fail(resp.StatusCode, utils.ErrResourceChanged)
			}
			return nil, fail(resp.StatusCode, utils.ErrRangeUnsupported)
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, fail(resp.StatusCode, utils.ErrRangeUnsupported)
	default:
		return nil, fail(resp.StatusCode, utils.StatusError(resp.StatusCode))
	}
	if contentRange != "" {
		if err := f.checkContentRange(contentRange, seg); err != nil {
			return nil, fail(resp.StatusCode, err)
		}
	}

	size := seg.Size()
	buf := make([]byte, size)
	body := &progressReader{r: resp.Body, report: f.opts.Progress, touch: touch}
	n, err := io.ReadFull(body, buf)
	if err != nil {
		f.report(-int64(n))
		return nil, fail(resp.StatusCode, fmt.Errorf("%w: got %d of %d bytes: %v", utils.ErrShortRead, n, size, err))
	}
	var extra [1]byte
	if m, _ := resp.Body.Read(extra[:]); m > 0 {
		f.report(-size)
		return nil, fail(resp.StatusCode, fmt.Errorf("%w: body is longer than %d bytes", utils.ErrShortRead, size))
	}
	return buf, nil
}

// checkContentRange verifies the server answered with exactly seg, out of a
// resource of the probed size.
func (f *Fetcher) checkContentRange(header string, seg plan.Segment) error {
	cr, err := ParseContentRange(header)
	if err != nil {
		return err
	}
	if cr.Start != seg.Start || cr.End != seg.End {
		return fmt.Errorf("server returned bytes %d-%d, want %d-%d", cr.Start, cr.End, seg.Start, seg.End)
	}
	if f.opts.Size > 0 && cr.Total >= 0 && cr.Total != f.opts.Size {
		return fmt.Errorf("%w: size is now %d, was %d", utils.ErrResourceChanged, cr.Total, f.opts.Size)
	}
	return nil
}

func (f *Fetcher) report(delta int64) {
	if f.opts.Progress != nil && delta != 0 {
		f.opts.Progress(delta)
	}
}

type progressReader struct {
	r      io.Reader
	report func(int64)
	touch  func()
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.touch()
		if p.report != nil {
			p.report(int64(n))
		}
	}
	return n, err
}

// ContentRange is a parsed "bytes start-end/total" header. Total is -1 when
// the server sent "*".
type ContentRange struct {
	Start, End, Total int64
}

func ParseContentRange(header string) (ContentRange, error) {
	cr := ContentRange{Total: -1}
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return cr, fmt.Errorf("unsupported Content-Range unit: %q", header)
	}
	span, total, ok := strings.Cut(spec, "/")
	if !ok {
		return cr, fmt.Errorf("malformed Content-Range: %q", header)
	}
	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return cr, fmt.Errorf("malformed Content-Range: %q", header)
	}
	var err error
	if cr.Start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return cr, fmt.Errorf("malformed Content-Range start: %q", header)
	}
	if cr.End, err = strconv.ParseInt(last, 10, 64); err != nil {
		return cr, fmt.Errorf("malformed Content-Range end: %q", header)
	}
	if cr.End < cr.Start {
		return cr, fmt.Errorf("inverted Content-Range: %q", header)
	}
	if total != "*" {
		if cr.Total, err = strconv.ParseInt(total, 10, 64); err != nil || cr.Total <= cr.End {
			return cr, fmt.Errorf("malformed Content-Range total: %q", header)
		}
	}
	return cr, nil
}
