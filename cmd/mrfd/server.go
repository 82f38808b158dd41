package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Server struct {
	pipeline *mrf.Pipeline
	store    *config.Store
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
	// if empty, the admin API is disabled
	adminPassword string
}

type Config struct {
	Logger        *slog.Logger
	Bind          string
	AdminPassword string
	// Largest accepted activity document, in echo BodyLimit syntax ("4M")
	BodyLimit string
	// HTTP metrics are registered here; defaults to the global prometheus registry
	Registerer prometheus.Registerer
}

func NewServer(pipeline *mrf.Pipeline, store *config.Store, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "4M"
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		pipeline:      pipeline,
		store:         store,
		echo:          e,
		logger:        logger,
		adminPassword: cfg.AdminPassword,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           cfg.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "mrfd",
		Registerer: reg,
	}))
	e.Use(otelecho.Middleware("mrfd"))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/mrf/filter", srv.HandleFilter)
	e.GET("/mrf/describe", srv.HandleDescribe)
	e.GET("/mrf/config-description", srv.HandleConfigDescription)

	admin := e.Group("/admin", srv.adminAuthMiddleware())
	admin.GET("/mrf/config", srv.HandleGetConfig)
	admin.PUT("/mrf/config", srv.HandlePutConfig)

	return srv
}

// HTTP Basic auth with username "admin" and a static password. With no password configured, every admin request is refused.
func (srv *Server) adminAuthMiddleware() echo.MiddlewareFunc {
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Validator: func(username, password string, c echo.Context) (bool, error) {
			if srv.adminPassword == "" {
				return false, nil
			}
			// "Be careful to use constant time comparison to prevent timing attacks"
			if subtle.ConstantTimeCompare([]byte(username), []byte("admin")) == 1 &&
				subtle.ConstantTimeCompare([]byte(password), []byte(srv.adminPassword)) == 1 {
				return true, nil
			}
			srv.logger.Warn("admin auth failed", "username", username, "remote", c.RealIP())
			return false, nil
		},
		Realm: "mrfd",
	})
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Serves the API until SIGINT or SIGTERM is received (or the context is cancelled), then shuts down gracefully.
func (srv *Server) RunAPI(ctx context.Context) error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
		return err
	case <-ctx.Done():
		srv.logger.Info("received exit signal")
	}

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
		return err
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
