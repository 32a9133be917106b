package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/script"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// Server wires the KV store, write queue, and script host to the seven
// documented endpoints. Routing is gorilla/mux — declared in the
// teacher's own go.mod and exercised by its main.go — replacing
// api/router.go's hand-rolled http.ServeMux wrapper; the middleware
// chain pattern api/router.go documents (ordered Use() registration) is
// kept, just expressed as mux's own middleware chaining.
type Server struct {
	router *mux.Router
}

// NewServer builds the routed handler. tokenDigest is the blake2b-256
// digest of the configured bearer token (see internal/config).
func NewServer(store *kv.Store, queue *writequeue.Queue, host *script.Host, tokenDigest [32]byte) *Server {
	r := mux.NewRouter()
	auth := requireToken(tokenDigest)

	h := &handlers{store: store, queue: queue, host: host, startedAt: time.Now()}

	r.HandleFunc("/get", auth(h.get)).Methods(http.MethodPost)
	r.HandleFunc("/set", auth(h.set)).Methods(http.MethodPost)
	r.HandleFunc("/delete", auth(h.delete)).Methods(http.MethodPost)
	r.HandleFunc("/list", auth(h.list)).Methods(http.MethodPost)
	r.HandleFunc("/listType", auth(h.listType)).Methods(http.MethodPost)
	r.HandleFunc("/exec", auth(h.exec)).Methods(http.MethodPost)
	r.HandleFunc("/execNow", auth(h.execNow)).Methods(http.MethodPost)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	return &Server{router: r}
}

// Handler returns the fully wired http.Handler, gzip-wrapped the way
// api/router.go layers cross-cutting middleware outermost.
func (s *Server) Handler() http.Handler {
	return withGzip(s.router)
}
