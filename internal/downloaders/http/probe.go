package surgehttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/surge/internal/utils"
)

// Resource describes the remote file as reported by the probe. It is not
// modified after Probe returns.
type Resource struct {
	URL          string // final URL after redirects
	Size         int64
	RangeCapable bool
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Probe issues a HEAD request for link and fails with a PreconditionError
// when the resource cannot be fetched in segments.
func Probe(ctx context.Context, client utils.HTTPDoer, link string, retry utils.RetryConfig) (*Resource, error) {
	var res *Resource
	err := withRetry(ctx, retry, "http/probe", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return &utils.TransportError{Op: "probe", URL: link, Err: err}
		}
		resp.Body.Close()
		if cause := utils.StatusError(resp.StatusCode); cause != nil {
			return &utils.TransportError{Op: "probe", URL: link, Status: resp.StatusCode, Err: cause}
		}
		res = &Resource{
			URL:          resp.Request.URL.String(),
			Size:         resp.ContentLength,
			RangeCapable: acceptsRanges(resp.Header),
			ETag:         resp.Header.Get("ETag"),
			ContentType:  resp.Header.Get("Content-Type"),
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				res.LastModified = t
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("op", "http/probe").Str("url", res.URL).Int64("size", res.Size).
		Bool("ranges", res.RangeCapable).Str("etag", res.ETag).Msg("Probe complete")

	if res.Size < 0 {
		return nil, &utils.PreconditionError{URL: res.URL, Err: utils.ErrSizeUnknown}
	}
	if !res.RangeCapable {
		return nil, &utils.PreconditionError{URL: res.URL, Err: utils.ErrRangeUnsupported}
	}
	return res, nil
}

// IfRangeValidator returns the ETag usable in an If-Range header. Weak
// validators are not allowed there.
func (r *Resource) IfRangeValidator() string {
	if r.ETag == "" || strings.HasPrefix(r.ETag, "W/") {
		return ""
	}
	return r.ETag
}

func acceptsRanges(h http.Header) bool {
	for _, v := range h.Values("Accept-Ranges") {
		for _, unit := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(unit), "bytes") {
				return true
			}
		}
	}
	return false
}
