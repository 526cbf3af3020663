// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

type options struct {
	timeout         time.Duration
	maxConnsPerHost int
}

type Option func(*options)

// WithTimeout bounds a whole request including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxConnsPerHost caps concurrent connections to one upstream host. Zero means no cap.
func WithMaxConnsPerHost(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConnsPerHost = n
		}
	}
}

// NewOutbound creates the outbound http client shared by the upstream callers.
func NewOutbound(opts ...Option) *http.Client {
	o := options{timeout: DefaultTimeout}
	for _, f := range opts {
		f(&o)
	}
	idlePerHost := 32
	if o.maxConnsPerHost > 0 {
		idlePerHost = o.maxConnsPerHost
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       o.maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   o.timeout,
	}
}
