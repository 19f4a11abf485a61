// Package httputil builds the outbound HTTP client used for processor calls.
package httputil

import (
	"net/http"
	"time"
)

// NewClient returns a client with a per-request timeout and a transport
// tuned for repeated calls to a single processor host. Proxy and TLS
// settings follow http.DefaultTransport.
func NewClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 20
	transport.IdleConnTimeout = 90 * time.Second
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
