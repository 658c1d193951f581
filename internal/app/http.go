package app

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newHTTPClient returns the client shared by every tier. Each tier also runs
// under its own context deadline; the client timeout is an outer bound.
func newHTTPClient(timeout time.Duration, sslVerify bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !sslVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed mirrors
	}
	if timeout <= 0 {
		timeout = defaultTierTimeout
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
