package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type codedError struct {
	code int
	msg  string
}

func (e codedError) Error() string  { return e.msg }
func (e codedError) ErrorCode() int { return e.code }

func fastRetry(attempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "net timeout", err: timeoutError{}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "wrapped connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), retryable: true},
		{name: "dial error", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, retryable: true},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true},
		{name: "rate limited text", err: errors.New("rate limit exceeded"), retryable: true},
		{name: "http 429", err: rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, retryable: true},
		{name: "http 503", err: rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, retryable: true},
		{name: "http 401", err: rpc.HTTPError{StatusCode: 401, Status: "401 Unauthorized"}},
		{name: "http 404", err: rpc.HTTPError{StatusCode: 404, Status: "404 Not Found"}},
		{name: "absent output", err: codedError{code: -32000, msg: "failed to get L2 block ref"}},
		{name: "execution reverted", err: codedError{code: 3, msg: "execution reverted"}},
		{name: "invalid params", err: errors.New("invalid argument 0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(time.Second),
		MaxBackoff:        common.NewDuration(5 * time.Second),
		BackoffMultiplier: 2,
	}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{attempt: 1, base: 0},
		{attempt: 2, base: time.Second},
		{attempt: 3, base: 2 * time.Second},
		{attempt: 4, base: 4 * time.Second},
		{attempt: 10, base: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			for range 10 {
				backoff := calculateBackoff(tt.attempt, cfg)
				require.GreaterOrEqual(t, backoff, tt.base*3/4)
				require.LessOrEqual(t, backoff, tt.base*5/4)
			}
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	expectedErr := errors.New("invalid argument 0")

	tests := []struct {
		name      string
		cfg       *config.RetryConfig
		failures  int
		failWith  error
		wantCalls int
		errMsg    string
	}{
		{name: "nil config succeeds once", cfg: nil, wantCalls: 1},
		{name: "nil config does not retry", cfg: nil, failures: 5, failWith: timeoutError{}, wantCalls: 1, errMsg: "timeout"},
		{name: "succeeds after retries", cfg: fastRetry(5), failures: 2, failWith: timeoutError{}, wantCalls: 3},
		{name: "non-retryable fails fast", cfg: fastRetry(5), failures: 5, failWith: expectedErr, wantCalls: 1, errMsg: "non-retryable error"},
		{name: "attempts exhausted", cfg: fastRetry(3), failures: 5, failWith: timeoutError{}, wantCalls: 3, errMsg: "all 3 attempts failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), tt.cfg, "test", func() error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			require.Equal(t, tt.wantCalls, calls)
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
			require.ErrorIs(t, err, tt.failWith)
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(10)
	cfg.InitialBackoff = common.NewDuration(50 * time.Millisecond)

	calls := 0
	err := retryWithBackoff(ctx, cfg, "test", func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return timeoutError{}
	})

	require.ErrorContains(t, err, "context cancelled")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, calls)
}
