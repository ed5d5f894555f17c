package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldsense/authgate/ratelimit"
)

// Code is the stable machine-readable identifier carried by every
// denial body. Values never change once published.
type Code string

const (
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeRevoked              Code = "token_revoked"
	CodeRateLimited          Code = "rate_limited"
	CodeCSRFFailed           Code = "csrf_validation_failed"
	CodePermissionDenied     Code = "permission_denied"
)

// Decision is the tagged outcome of one guard. Guards return it instead
// of writing to the ResponseWriter themselves so the chain stays
// composable and each denial renders through one path.
type Decision struct {
	Allowed    bool
	Status     int
	Code       Code
	Reason     string
	RetryAfter time.Duration
}

func deny(status int, code Code, reason string) Decision {
	return Decision{Status: status, Code: code, Reason: reason}
}

// denyBody is the JSON wire shape of every rejection.
type denyBody struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	MessageES  string `json:"message_es"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

var messages = map[Code][2]string{
	CodeAuthenticationFailed: {"Authentication failed.", "Fallo de autenticación."},
	CodeRevoked:              {"This session is no longer valid.", "Esta sesión ya no es válida."},
	CodeRateLimited:          {"Too many requests. Try again later.", "Demasiadas solicitudes. Intente de nuevo más tarde."},
	CodeCSRFFailed:           {"Request could not be verified.", "No se pudo verificar la solicitud."},
	CodePermissionDenied:     {"You do not have permission to do this.", "No tiene permiso para realizar esta acción."},
}

func writeDeny(w http.ResponseWriter, d Decision) {
	pair := messages[d.Code]

	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(d.RetryAfter), 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)

	_ = json.NewEncoder(w).Encode(denyBody{
		Code:       d.Code,
		Message:    pair[0],
		MessageES:  pair[1],
		Reason:     d.Reason,
		RetryAfter: retryAfterSeconds(d.RetryAfter),
	})
}

// setRateHeaders advertises the quota state on every metered response,
// allowed or denied.
func setRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	if res.Limit < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(retryAfterSeconds(res.RetryAfter), 10))
}

// retryAfterSeconds rounds up so a client honoring the hint never
// retries inside the same window.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
