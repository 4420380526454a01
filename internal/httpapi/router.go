// Package httpapi is the HTTP surface: route dispatch, request parsing,
// content negotiation, caching headers, and CORS, built on
// github.com/go-chi/chi/v5.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/diskuto/diskuto-api/internal/feed"
	"github.com/diskuto/diskuto-api/internal/ingest"
	"github.com/diskuto/diskuto-api/internal/metrics"
)

// Server holds everything the route handlers close over.
type Server struct {
	feed    *feed.Service
	ingest  *ingest.Service
	log     *logrus.Logger
	pageCap int
}

// New constructs an httpapi Server. pageLimit is the server-configured
// default/ceiling for list endpoints.
func New(feedSvc *feed.Service, ingestSvc *ingest.Service, log *logrus.Logger, pageLimit int) *Server {
	return &Server{feed: feedSvc, ingest: ingestSvc, log: log, pageCap: pageLimit}
}

// Routes builds the chi router, plus a /diskuto/healthz liveness probe
// and a /metrics Prometheus endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(s.cors)
	r.Use(middleware.Recoverer) // translates handler panics to 500

	r.Get("/diskuto/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/diskuto", func(r chi.Router) {
		r.Get("/homepage", s.handleHomepage)
		r.Route("/users/{uid}", func(r chi.Router) {
			r.Get("/profile", s.handleProfile)
			r.Get("/feed", s.handleFeed)
			r.Get("/items", s.handleUserItems)
			r.Route("/items/{sig}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Put("/", s.handlePutItem)
				r.Get("/replies", s.handleReplies)
				r.Route("/files/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetFile)
					r.Head("/", s.handleHeadFile)
					r.Put("/", s.handlePutFile)
				})
			})
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// logRequests logs each request as structured fields via logrus rather
// than a plain log line.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		metrics.HTTPRequests.WithLabelValues(routePattern, strconv.Itoa(ww.Status())).Inc()
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Info("request")
	})
}

// cors is permissive for GET/HEAD, and writes are also permitted
// cross-origin since authorization rides on the item's signature, not a
// cookie or origin check.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
