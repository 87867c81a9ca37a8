package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusOf returns the HTTP status carried by err, or 0 when err does not
// wrap an HTTPStatusCoder.
func StatusOf(err error) int {
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

func IsPermissionDenied(err error) bool {
	code := StatusOf(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusLabel renders err as a short metrics label.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsTimeout(err):
		return "timeout"
	}
	if code := StatusOf(err); code != 0 {
		return http.StatusText(code)
	}
	return "error"
}
