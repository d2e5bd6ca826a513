package gemini

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
// every credential that has no per-account proxy configured, matching the
// dial/handshake/idle timeouts Code Assist's own CLI client uses.
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
		log.Debug("gemini: initialized pooled HTTP client")
	})
	return pooledClient
}

// httpClientFor returns a client for the given proxy, reusing the pooled
// transport when no proxy is set and only building a dedicated client when a
// per-credential proxy must be honored. Gemini responses stream over
// potentially long-lived connections, so no blanket client.Timeout is set;
// callers bound individual calls via context instead.
func httpClientFor(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return pooledHTTPClient(), nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{Proxy: http.ProxyURL(parsed)}
	return &http.Client{Transport: transport}, nil
}
