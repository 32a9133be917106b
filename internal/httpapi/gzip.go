package httpapi

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// withGzip wraps a handler with transparent response compression when
// the client sends Accept-Encoding: gzip, using the same
// klauspost/compress dependency jpl-au-folio's compress.go reaches for
// zstd snapshot compression — gzhttp is that module's purpose-built
// net/http wrapper rather than a hand-rolled gzip.Writer middleware.
// List/ListType responses are the ones most worth compressing: they can
// run to many thousands of entries.
func withGzip(h http.Handler) http.Handler {
	wrapped, err := gzhttp.NewWrapper()
	if err != nil {
		return h
	}
	return wrapped(h)
}
