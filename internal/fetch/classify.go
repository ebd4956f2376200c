package fetch

import (
	"context"
	"errors"
	"net"
	"strings"

	"geoseed/internal/domain"
)

// errTransient marks failures worth retrying. Transfers wrap 5xx responses
// and connection-level failures with it.
var errTransient = errors.New("transient transfer failure")

// isTransient reports whether a transfer failure is worth retrying.
// Cancellation is never transient; a per-attempt timeout is.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "unexpected eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// expiredSignatureIndicators are the provider responses that mean a signed
// URL is stale rather than the transfer being broken. Matched
// case-insensitively against error text and response bodies.
var expiredSignatureIndicators = []string{
	"signaturedoesnotmatch",
	"expiredtoken",
	"request has expired",
	"authenticationfailed",
	"invalid signature",
}

func hasExpiredSignatureIndicator(s string) bool {
	s = strings.ToLower(s)
	for _, indicator := range expiredSignatureIndicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

// classify maps a terminal fetch failure to the error taxonomy. Failures a
// transfer already typed pass through unchanged.
func classify(location string, err error) error {
	var expired *domain.ExpiredCredentialError
	if errors.As(err, &expired) {
		return expired
	}
	var unsupported *domain.UnsupportedSchemeError
	if errors.As(err, &unsupported) {
		return unsupported
	}
	var transferErr *domain.TransferError
	if errors.As(err, &transferErr) {
		return transferErr
	}
	if hasExpiredSignatureIndicator(err.Error()) {
		return &domain.ExpiredCredentialError{Location: location, Cause: err}
	}
	return &domain.TransferError{Location: location, Cause: err}
}
