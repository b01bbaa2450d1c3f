// Package api exposes the wager engine over HTTP with chi. Handlers decode
// requests, call the domain services and map apperr values onto statuses.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/wager-engine/internal/aggregate"
	"github.com/atmx/wager-engine/internal/blob"
	"github.com/atmx/wager-engine/internal/live"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/settlement"
	"github.com/atmx/wager-engine/internal/store"
	"github.com/atmx/wager-engine/internal/tracker"
	"github.com/atmx/wager-engine/internal/wager"
)

// Options tunes the router. Zero values disable the optional pieces.
type Options struct {
	Network        string
	RPCURL         string
	StoreKind      string
	Pricing        string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server wires the domain services to HTTP handlers.
type Server struct {
	store     store.Store
	recorder  *wager.Recorder
	tracker   *tracker.Tracker
	settler   *settlement.Engine
	aggregate *aggregate.Engine
	images    blob.ImageStore // nil disables uploads
	hub       *live.Hub
	opts      Options
}

// Deps are the collaborators of a Server.
type Deps struct {
	Store      store.Store
	Recorder   *wager.Recorder
	Tracker    *tracker.Tracker
	Settlement *settlement.Engine
	Aggregate  *aggregate.Engine
	Images     blob.ImageStore
	Hub        *live.Hub
}

// New creates a Server.
func New(d Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	return &Server{
		store:     d.Store,
		recorder:  d.Recorder,
		tracker:   d.Tracker,
		settler:   d.Settlement,
		aggregate: d.Aggregate,
		images:    d.Images,
		hub:       d.Hub,
		opts:      opts,
	}
}

// Router builds the chi router with the middleware stack and all routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}
	r.Use(metrics.Middleware)
	r.Use(cors(s.opts.CORSOrigins))
	if s.opts.RateLimit > 0 {
		r.Use(newWriteLimiter(s.opts.RateLimit, s.opts.RateBurst).Middleware)
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Post("/wagers", s.placeWager)
		r.Get("/wagers", s.listWagers)

		r.Post("/markets", s.createMarket)
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/trending", s.trendingMarkets)
		r.Route("/markets/{marketID}", func(r chi.Router) {
			r.Get("/", s.getMarket)
			r.Post("/resolve", s.resolveMarket)
			r.Post("/close", s.closeMarket)
			r.Post("/reconcile", s.reconcileMarket)
			r.Post("/chart", s.recordChartPoint)
			r.Get("/chart", s.queryChart)
			r.Post("/image", s.uploadImage)
		})

		r.Post("/users", s.createUser)
		r.Get("/users/{wallet}", s.getUser)
		r.Patch("/users/{wallet}", s.updateUser)

		r.Get("/portfolio/{wallet}", s.getPortfolio)
		r.Get("/leaderboard", s.getLeaderboard)
		r.Get("/stats", s.getStats)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "wager-engine",
		"network": s.opts.Network,
		"rpc_url": s.opts.RPCURL,
		"store":   s.opts.StoreKind,
		"pricing": s.opts.Pricing,
	})
}

// cors allows the configured origins; an empty list or "*" allows any.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
