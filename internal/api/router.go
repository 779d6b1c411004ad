package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/middleware"
)

type RouterOptions struct {
	// Limiter throttles POST /index per client IP. Nil disables it.
	Limiter       *middleware.Limiter
	SearchTimeout time.Duration
	Metrics       *metrics.Metrics
}

// NewRouter builds the API handler.
//
//	POST /index             start an indexing run (rate limited)
//	POST /search            run a query (bounded by SearchTimeout)
//	GET  /stats             index size
//	POST /cache/invalidate  drop cached results
//
// Middleware, outermost first: RequestID, AccessLog, Metrics.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	var index http.Handler = http.HandlerFunc(h.Index)
	if opts.Limiter != nil {
		index = middleware.RateLimit(opts.Limiter, opts.Metrics)(index)
	}
	mux.Handle("/index", index)
	mux.Handle("/search", middleware.Timeout(opts.SearchTimeout)(http.HandlerFunc(h.Search)))
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	chain = middleware.Metrics(opts.Metrics, "/index", "/search", "/stats", "/cache/invalidate")(chain)
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)
	return chain
}
