package live

import "strings"

// ErrorClass represents whether a connector error should be retried.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure worth reconnecting for.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates reconnecting cannot help (bad credentials, bad URL).
	ErrorClassFatal
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	if ec == ErrorClassFatal {
		return "fatal"
	}
	return "retryable"
}

// ClassifyFeedError sorts relay connection errors into retryable vs fatal.
//
// Fatal: authentication failures (401/403, session rejected), malformed
// relay URLs. Retryable: network interruptions, server errors, rate
// limiting, abnormal websocket closures. Unmatched errors default to
// retryable so a transient blip never permanently stops the connector.
func ClassifyFeedError(err error) ErrorClass {
	if err == nil {
		return ErrorClassRetryable
	}
	lower := strings.ToLower(err.Error())

	// Server-side errors stay retryable even though they carry status codes.
	if strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout") {
		return ErrorClassRetryable
	}

	fatalPatterns := []string{
		"401",
		"403",
		"unauthorized",
		"forbidden",
		"session expired",
		"session rejected",
		"authentication required",
		"malformed ws or wss url",
		"unsupported scheme",
	}
	for _, pattern := range fatalPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}

	return ErrorClassRetryable
}

// IsRetryableFeedError reports whether the connector should reconnect.
func IsRetryableFeedError(err error) bool {
	return ClassifyFeedError(err) == ErrorClassRetryable
}
