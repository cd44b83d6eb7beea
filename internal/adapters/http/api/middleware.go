package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/checkin/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest   = 400
	statusUnauthorized = 401
	statusForbidden    = 403
	statusNotFound     = 404
	statusInternal     = 500
	statusUnavailable  = 503
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode == statusUnavailable:
		return "unavailable"
	case statusCode >= statusInternal:
		return "server_error"
	case statusCode == statusUnauthorized:
		return "unauthorized"
	case statusCode == statusForbidden:
		return "forbidden"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// identity decides which user a mutating request acts for.
type identity struct {
	users    Verifier
	required bool
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// actor returns the acting user. A token, when sent, wins over the body's
// user_id and must agree with it. Without a token the claimed id is used
// unless tokens are required.
func (i *identity) actor(r *http.Request, claimed int64) (int64, error) {
	token := bearer(r)
	if token == "" {
		if i.required {
			return 0, ErrMissingToken
		}
		if claimed < 1 {
			return 0, invalid("user_id is required")
		}
		return claimed, nil
	}

	uid, err := i.users.Verify(r.Context(), token)
	if err != nil {
		return 0, err
	}
	if claimed != 0 && claimed != uid {
		return 0, ErrUserMismatch
	}
	return uid, nil
}

// authorize checks the token when tokens are required, for requests that
// carry no user id of their own.
func (i *identity) authorize(r *http.Request) error {
	token := bearer(r)
	if token == "" {
		if i.required {
			return ErrMissingToken
		}
		return nil
	}
	_, err := i.users.Verify(r.Context(), token)
	return err
}
