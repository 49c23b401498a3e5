package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigin  string
	RateLimit   int // requests per minute per client IP under /api
	// Middlewares run before the router's own, around every route
	// including those the caller mounts later.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter returns the API router: the index page at / and the stream
// endpoints under /api. Callers mount extra routes (hooks, metrics) on the
// returned router.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(opts.Middlewares...)
	r.Use(Recover(h.log))
	r.Use(CORS(opts.CORSOrigin))
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/", h.Index)
	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(opts.RateLimit, time.Minute))
		r.Get("/info", h.Info)
		r.Route("/stream", func(r chi.Router) {
			r.Get("/status", h.Status)
			r.Get("/url", h.URL)
			r.Get("/stats", h.Stats)
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
		})
	})
	return r
}

// NewMediaRouter returns the router for the HLS port: transcoder output
// under /live and a liveness probe at /healthz.
func NewMediaRouter(root string) chi.Router {
	r := chi.NewRouter()
	r.Use(CORS("*"))
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, "ok", nil)
	})
	media := MediaHandler(root)
	r.Get("/live/*", media.ServeHTTP)
	r.Head("/live/*", media.ServeHTTP)
	return r
}
