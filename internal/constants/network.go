package constants

import "time"

// HTTP transport timeout defaults, used by config.DefaultGatewayConfig when
// an operator hasn't overridden them.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 60 * time.Second
	DefaultExpectContinueTimeout = 2 * time.Second
)
