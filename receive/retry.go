package receive

import (
	"strings"
	"time"
)

// Retry policy for callers that re-request undecryptable messages
// after re-establishing session state. The resolver itself never
// retries; it only classifies failures.
const (
	MaxRetries     = 5
	BaseRetryDelay = 3 * time.Second
)

// NoSessionPatterns are the session-layer error texts that indicate a
// missing session record rather than corrupt ciphertext. A caller
// seeing one may rebuild the session and retry.
var NoSessionPatterns = []string{
	"no session record",
	"no session found",
	"no sender key",
}

// IsNoSession reports whether err looks like a missing-session
// failure. Matching is textual: session stores are external and their
// error chains are not guaranteed to survive transport boundaries.
func IsNoSession(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	for _, pattern := range NoSessionPatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}
