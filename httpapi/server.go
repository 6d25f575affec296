// Package httpapi serves the JSON API, the cookie-session account endpoints
// and the cart over chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/cart"
	"github.com/MrEthical07/shopauth/external"
	"github.com/MrEthical07/shopauth/middleware"
)

// Deps are the services behind the router. Cart, Providers and Metrics are
// optional; their routes are not mounted when nil.
type Deps struct {
	Engine    *shopauth.Engine
	Cart      *cart.Service
	Providers *external.Registry
	Metrics   http.Handler
	Logger    *zap.Logger
}

// Server holds the handlers.
type Server struct {
	engine    *shopauth.Engine
	cart      *cart.Service
	providers *external.Registry
	metrics   http.Handler
	logger    *zap.Logger
	cfg       shopauth.Config
}

// New builds a Server from d.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:    d.Engine,
		cart:      d.Cart,
		providers: d.Providers,
		metrics:   d.Metrics,
		logger:    logger.Named("http"),
		cfg:       d.Engine.Config(),
	}
}

// Routes returns the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		s.requestLogger,
		middleware.ClientInfo,
		chimw.Timeout(60*time.Second),
	)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.CORS(s.cfg.CORS.AllowedOrigins))
		s.apiRoutes(r)
	})
	r.Route("/Account", s.accountRoutes)
	if s.cart != nil {
		r.Route("/Cart", s.cartRoutes)
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.engine.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// NewHTTPServer wraps handler with the listener settings from cfg.
func NewHTTPServer(cfg shopauth.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
