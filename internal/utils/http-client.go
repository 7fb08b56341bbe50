package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	// Timeout bounds the wait for response headers. Body transfer has no
	// overall deadline; stalls are detected per read by the fetcher.
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // larger socket buffers for many parallel connections
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient is shared by the probe and every segment fetch of a run; the
// underlying transport pools connections and is safe for concurrent use.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

const dialTimeout = 30 * time.Second

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true, // raw bytes for range requests
		Proxy:                 http.ProxyFromEnvironment,
	}
	if proxyURL := cfg.proxyURL(); proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &HTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

func (cfg HTTPClientConfig) proxyURL() *url.URL {
	if cfg.ProxyURL == "" {
		return nil
	}
	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil
	}
	switch {
	case cfg.ProxyUsername != "" && cfg.ProxyPassword != "":
		proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
	case cfg.ProxyUsername != "":
		proxyURL.User = url.User(cfg.ProxyUsername)
	}
	return proxyURL
}

// Timeout returns the effective header timeout, also used as the stall limit
// for body reads.
func (c *HTTPClient) Timeout() time.Duration {
	return c.config.Timeout
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}
