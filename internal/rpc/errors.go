package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// codeServerError is the generic JSON-RPC server error rollup nodes use
// when they cannot serve an output.
const codeServerError = -32000

var absentOutputMessages = []string{
	"not found",
	"could not get payload",
	"failed to get l2 block ref",
	"unknown block",
}

// IsOutputAbsent reports whether an optimism_outputAtBlock failure means the
// node has no data for the block, as opposed to a transport or node fault.
func IsOutputAbsent(err error) bool {
	if err == nil {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeServerError {
		msg := strings.ToLower(rpcErr.Error())
		for _, m := range absentOutputMessages {
			if strings.Contains(msg, m) {
				return true
			}
		}
	}

	return false
}

// errorType buckets an error for the rpc error metric.
func errorType(err error) string {
	var (
		httpErr rpc.HTTPError
		rpcErr  rpc.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &rpcErr):
		return "rpc"
	case retryableError(err):
		return "transport"
	default:
		return "other"
	}
}
