// Package http builds the outbound HTTP clients used for the task runner and LLM providers.
package http

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request including reading the body.
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns          = 50
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultExpectContinueTimeout = time.Second

	// DefaultUserAgent is sent when ClientConfig.UserAgent is empty.
	DefaultUserAgent = "scrape-analyzer/1.0"
)

// ClientConfig configures an outbound client.
type ClientConfig struct {
	// Timeout is the per-request limit. Zero uses DefaultTimeout.
	Timeout time.Duration
	// ResponseHeaderTimeout limits the wait for response headers. Zero disables it,
	// which LLM calls need since providers stream nothing until the completion is ready.
	ResponseHeaderTimeout time.Duration
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
	// Transport replaces the default transport (tests inject httptest transports here).
	Transport http.RoundTripper
}

// NewClient returns an *http.Client with pooled connections and a User-Agent header.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: base, userAgent: userAgent},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
