package router

import (
	"net"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
)

// shouldRetry reports whether a failed message is worth redelivering.
// Usage and integrity errors fail the same way on every attempt.
func shouldRetry(logger *logger.Logger, err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}

	if ierr.IsRetryable(err) {
		return true
	}

	logger.Debugw("not retrying message", "error", err, "code", ierr.CodeFromErr(err))
	return false
}
