package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"unsafe"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

var bearerPrefix = []byte("Bearer ")

// authHeader returns the Authorization header, falling back to an
// access_token query parameter when allowQuery is set. Browsers cannot set
// headers on EventSource requests.
func authHeader(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		return h
	}
	if allowQuery {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return string(bearerPrefix) + token
		}
	}
	return ""
}

// bearerTokenFromString returns the compact JWT of a "Bearer <jwt>" value
// without copying it.
func bearerTokenFromString(raw string) ([]byte, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return nil, errMissingAuthorization
	}
	tokenBytes := readOnlyBytes(trimmed)
	if len(tokenBytes) <= len(bearerPrefix) || !bytes.HasPrefix(tokenBytes, bearerPrefix) {
		return nil, errBadAuthorization
	}
	tokenBytes = tokenBytes[len(bearerPrefix):]
	if bytes.Count(tokenBytes, []byte{'.'}) != 2 {
		return nil, errBadAuthorization
	}
	return tokenBytes, nil
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
