package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

const (
	msgConnectivity = "Network connection failed. Please check your internet connection and the Conductor API URL."
	msgTimeout      = "Request timed out. The Conductor API may be experiencing issues."
	msgUnavailable  = "QuickBooks Desktop is not connected or not responding. Make sure QuickBooks Desktop is running and the Web Connector is connected."
	msgConflict     = "The record was modified by another process. Fetch the latest revision number and try again."
)

// StatusError is a non-2xx upstream response before translation.
type StatusError struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// Translate maps a raw failure onto the taxonomy. An error that already
// carries a Kind is returned unchanged.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	var se *StatusError
	if errors.As(err, &se) {
		return fromStatus(se)
	}
	return fromTransport(err)
}

func fromStatus(se *StatusError) *Error {
	body := parseBody(se.Body, se.ContentType)
	e := &Error{
		StatusCode: se.StatusCode,
		Code:       body.code,
		Details:    body.details,
		Err:        se,
	}
	switch se.StatusCode {
	case http.StatusBadRequest:
		e.Kind = KindValidation
		e.Message = orDefault(body.message, "Invalid request parameters")
	case http.StatusUnauthorized:
		e.Kind = KindAuthentication
		e.Message = orDefault(body.message, "Authentication failed. Check the Conductor secret key.")
	case http.StatusForbidden:
		e.Kind = KindPermission
		e.Message = orDefault(body.message, "Access denied for this end-user.")
	case http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = orDefault(body.message, "Resource not found")
	case http.StatusConflict:
		e.Kind = KindConflict
		e.Message = msgConflict
		if body.message != "" {
			e.Message = body.message + ". " + msgConflict
		}
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.Message = orDefault(body.message, "Rate limit exceeded. Retry after a short delay.")
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e.Kind = KindUpstreamUnavailable
		e.Message = msgUnavailable
		if body.message != "" && e.Details == nil {
			e.Details = map[string]any{"upstreamMessage": body.message}
		}
	default:
		e.Kind = KindGeneric
		e.Message = orDefault(body.message, fmt.Sprintf("Unexpected upstream response %d", se.StatusCode))
	}
	return e
}

func fromTransport(err error) *Error {
	e := &Error{Kind: KindGeneric, Err: err}
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Message = "Request canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		e.Message, e.Code = msgTimeout, CodeTimeout
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			e.Message, e.Code = msgTimeout, CodeTimeout
		} else {
			e.Message, e.Code = msgConnectivity, CodeNotFound
		}
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Message, e.Code = msgConnectivity, CodeConnRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Message, e.Code = msgTimeout, CodeTimeout
	case errors.As(err, &netErr):
		e.Message, e.Code = msgConnectivity, CodeNetwork
	default:
		e.Message = err.Error()
	}
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
