package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// EventStore is the subset of the store the HTTP API depends on.
type EventStore interface {
	ListAll(ctx context.Context) []model.Event
	GetByID(ctx context.Context, id string) (model.Event, error)
	Insert(ctx context.Context, in model.Input) (model.Event, error)
	Update(ctx context.Context, id string, in model.Input) (model.Event, error)
	Delete(ctx context.Context, id string) (model.Event, error)
}

// Server exposes the event store over HTTP/JSON.
type Server struct {
	cfg   *config.Config
	store EventStore
	echo  *echo.Echo
	now   func() time.Time
}

// NewServer wires middleware and routes. reg may be nil, in which case no
// /metrics endpoint is exposed even if metrics are enabled in cfg.
func NewServer(cfg *config.Config, store EventStore, reg *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		cfg:   cfg,
		store: store,
		echo:  e,
		now:   time.Now,
	}

	s.setupMiddleware()
	// Metrics sit outside access control so rejected requests are counted.
	if cfg.Metrics.Enabled && reg != nil {
		s.setupMetrics(reg)
	}
	s.setupAccessControl()
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- s.echo.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", float64(v.Latency.Nanoseconds()) / 1e6,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error.Error())
				appLog.L().Warnw("HTTP request failed", fields...)
				return nil
			}
			appLog.L().Debugw("HTTP request", fields...)
			return nil
		},
	}))
}

// setupAccessControl installs CORS, rate limiting and basic auth.
func (s *Server) setupAccessControl() {
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	if s.cfg.RateLimit > 0 {
		burst := int(s.cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: isHealth,
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.cfg.RateLimit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return writeError(c, http.StatusForbidden, "Rate limit error")
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return writeError(c, http.StatusTooManyRequests, "Rate limit exceeded")
			},
		}))
	}

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		username := s.cfg.BasicAuth.Username
		password := s.cfg.BasicAuth.Password
		s.echo.Use(middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
			Skipper: isHealth,
			Realm:   "eventcal",
			Validator: func(u, p string, _ echo.Context) (bool, error) {
				return secureCompare(u, username) && secureCompare(p, password), nil
			},
		}))
	}
}

func (s *Server) setupMetrics(reg *prometheus.Registry) {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventcal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	reg.MustRegister(requestsTotal, requestDuration)

	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			requestsTotal.WithLabelValues(
				c.Request().Method,
				path,
				strconv.Itoa(responseStatus(c, err)),
			).Inc()
			requestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	})

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

// responseStatus is the status the client will see once err, if any, has
// gone through the error handler.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func isHealth(c echo.Context) bool {
	return c.Request().URL.Path == "/api/health"
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
