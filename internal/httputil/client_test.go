package httputil

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T", c.Transport)
	}
	if tr.MaxIdleConnsPerHost != 20 || tr.ResponseHeaderTimeout != 5*time.Second {
		t.Errorf("transport not tuned: idle/host=%d header timeout=%v", tr.MaxIdleConnsPerHost, tr.ResponseHeaderTimeout)
	}
	if tr == http.DefaultTransport {
		t.Error("default transport must not be shared")
	}
}
