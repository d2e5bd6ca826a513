package kiro

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	pooledClientOnce sync.Once
	pooledClient     *http.Client
)

// pooledHTTPClient returns a shared, connection-pooled client reused across
// every credential that has no per-account proxy configured.
func pooledHTTPClient() *http.Client {
	pooledClientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		}
		pooledClient = &http.Client{Transport: transport}
		log.Debug("kiro: initialized pooled HTTP client")
	})
	return pooledClient
}

// httpClientFor returns a client for the given proxy and timeout, reusing the
// pooled transport when no proxy is set (the common case) and only building a
// dedicated client when a per-credential proxy must be honored.
func httpClientFor(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		base := pooledHTTPClient()
		if timeout <= 0 {
			return base, nil
		}
		return &http.Client{Transport: base.Transport, Timeout: timeout}, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{Proxy: http.ProxyURL(parsed)}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
