package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/surge-downloader/sdm/internal/engine/types"
)

var (
	// ErrAborted is returned when the progress callback or context stops a transfer
	ErrAborted = errors.New("transfer aborted")
	// ErrInsufficientSpace is returned when the destination volume cannot hold the body
	ErrInsufficientSpace = errors.New("insufficient disk space")
	// ErrHTTPStatus is returned when the server answers with a status >= 400
	ErrHTTPStatus = errors.New("server returned error status")
	// ErrRangeNotSatisfiable is returned when the server rejects the resume offset
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

	errTooManyRedirects = errors.New("too many redirects")
)

// initError marks failures that happen before any request is sent
type initError struct{ err error }

func (e *initError) Error() string { return "request setup failed: " + e.err.Error() }
func (e *initError) Unwrap() error { return e.err }

// sinkError marks failures writing received bytes to the destination
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "write error: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Classify maps a transfer error onto a persisted ErrorKind
func Classify(err error) types.ErrorKind {
	if err == nil {
		return types.ErrNone
	}

	var (
		ie      *initError
		se      *sinkError
		dnsErr  *net.DNSError
		opErr   *net.OpError
		netErr  net.Error
		urlErr  *url.Error
		certErr *tls.CertificateVerificationError
		recErr  tls.RecordHeaderError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		invErr  x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return types.ErrAbortedByCallback
	case errors.Is(err, ErrInsufficientSpace):
		return types.ErrInsufficientSpace
	case errors.Is(err, ErrHTTPStatus):
		return types.ErrHTTPReturnedError
	case errors.Is(err, ErrRangeNotSatisfiable):
		return types.ErrRangeError
	case errors.Is(err, errTooManyRedirects):
		return types.ErrTooManyRedirects
	case errors.As(err, &ie):
		return types.ErrFailedInit
	case errors.As(err, &se):
		return types.ErrWriteError
	case errors.As(err, &dnsErr):
		return types.ErrCouldNotResolveHost
	case errors.As(err, &certErr), errors.As(err, &recErr),
		errors.As(err, &authErr), errors.As(err, &hostErr), errors.As(err, &invErr):
		return types.ErrSSLConnectError
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrOperationTimedOut
	case errors.As(err, &netErr) && netErr.Timeout():
		return types.ErrOperationTimedOut
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return types.ErrCouldNotConnect
	case errors.Is(err, io.ErrUnexpectedEOF):
		return types.ErrPartialFile
	case errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme"):
		return types.ErrFailedInit
	default:
		return types.ErrUnknown
	}
}

// WriteFailure marks err as a failure of the local destination
func WriteFailure(err error) error {
	if err == nil {
		return nil
	}
	return &sinkError{err: err}
}
