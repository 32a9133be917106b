package httpapi

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"
)

// requireToken checks the request body's {"token": "..."} field against
// a single configured bearer token, adapted from
// api/auth_middleware.go's SessionAuthMiddleware: that middleware
// resolves a Bearer token to a session and a user entity via a session
// manager; this store has neither sessions nor users, only one
// operator-configured token, so the check collapses to reading the
// token out of the body and comparing its digest.
//
// tokenDigest is the blake2b-256 digest of the configured token,
// computed once at startup by the config package — the clear token
// itself is never retained in this middleware's closure.
//
// The body is buffered and restored onto the request so the wrapped
// handler can still decode the full payload, token field included.
func requireToken(tokenDigest [32]byte) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))

			var body struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(raw, &body); err != nil || body.Token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			presented := blake2b.Sum256([]byte(body.Token))
			if subtle.ConstantTimeCompare(presented[:], tokenDigest[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next(w, r)
		}
	}
}
