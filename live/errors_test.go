package live

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyFeedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassRetryable},
		{"network reset", errors.New("read relay frame: connection reset by peer"), ErrorClassRetryable},
		{"timeout", errors.New("dial relay: i/o timeout"), ErrorClassRetryable},
		{"server error", errors.New("dial relay: bad handshake (status 500 Internal Server Error)"), ErrorClassRetryable},
		{"bad gateway", errors.New("dial relay: bad handshake (status 502 Bad Gateway)"), ErrorClassRetryable},
		{"unauthorized", errors.New("dial relay: bad handshake (status 401 Unauthorized)"), ErrorClassFatal},
		{"forbidden", errors.New("dial relay: bad handshake (status 403 Forbidden)"), ErrorClassFatal},
		{"session expired", errors.New("session expired, sign in again"), ErrorClassFatal},
		{"bad url", errors.New("malformed ws or wss URL"), ErrorClassFatal},
		{"wrapped auth", fmt.Errorf("run: %w", errors.New("authentication required")), ErrorClassFatal},
		{"unknown", errors.New("something odd happened"), ErrorClassRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFeedError(tt.err); got != tt.want {
				t.Errorf("ClassifyFeedError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableFeedError(t *testing.T) {
	if IsRetryableFeedError(errors.New("401 unauthorized")) {
		t.Errorf("auth failure reported retryable")
	}
	if !IsRetryableFeedError(errors.New("connection refused")) {
		t.Errorf("network failure reported fatal")
	}
}
