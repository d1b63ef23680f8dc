package gemini

import (
	"net"
	"net/http"
	"time"
)

// sharedTransport is the tuned transport behind every client. No client-level
// timeout: per-call deadlines come from the request context.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 120 * time.Second,
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   0,
		Transport: sharedTransport,
	}
}
