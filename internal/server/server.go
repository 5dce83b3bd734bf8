package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/internal/server/endpoints"
	"github.com/agubarev/aegis/pkg/alert"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds the graceful shutdown
const ShutdownTimeout = 10 * time.Second

// Options configures the HTTP surface
type Options struct {
	CORSOrigins []string
}

// NewRegistry returns a metrics registry with every Aegis collector registered
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	collectors := append(telemetry.Collectors(), alert.Collectors()...)
	collectors = append(collectors, prometheus.NewGoCollector())

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics collector")
		}
	}

	return reg, nil
}

// NewRouter builds the complete HTTP routing tree
func NewRouter(c *core.Core, reg *prometheus.Registry, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	//---------------------------------------------------------------------------
	// API ROUTING (V1)
	//---------------------------------------------------------------------------
	r.Route("/api/v1", func(r chi.Router) {
		// agents
		r.Method(http.MethodPost, "/enroll", endpoints.NewEndpoint("enroll", c, endpoints.Enroll))
		r.Method(http.MethodPost, "/telemetry", endpoints.NewEndpoint("ingest", c, endpoints.Ingest))

		// realtime stream authenticates by itself, browsers can't set headers
		r.Method(http.MethodGet, "/alerts/stream", c.Gateway())

		// any session
		r.Group(func(r chi.Router) {
			r.Use(endpoints.MiddlewareSession(c))
			r.Method(http.MethodGet, "/events", endpoints.NewEndpoint("list_events", c, endpoints.ListEvents))
		})

		// operators
		r.Group(func(r chi.Router) {
			r.Use(endpoints.MiddlewareSession(c, session.ROwner, session.RAdmin))
			r.Method(http.MethodPost, "/tokens", endpoints.NewEndpoint("issue_token", c, endpoints.IssueToken))

			r.Route("/devices", func(r chi.Router) {
				r.Method(http.MethodGet, "/", endpoints.NewEndpoint("list_devices", c, endpoints.ListDevices))
				r.Method(http.MethodPost, "/{id}/revoke", endpoints.NewEndpoint("revoke_device", c, endpoints.RevokeDevice))
				r.Method(http.MethodDelete, "/{id}/baseline", endpoints.NewEndpoint("reset_baseline", c, endpoints.ResetBaseline))
			})
		})
	})

	return r
}

// Run serves the API until ctx is cancelled
func Run(ctx context.Context, c *core.Core, addr string, opts Options) (err error) {
	if err = c.Validate(); err != nil {
		return err
	}

	reg, err := NewRegistry()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(c, reg, opts),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errch := make(chan error, 1)
	go func() {
		c.Logger().Info("listening", zap.String("addr", addr))
		errch <- srv.ListenAndServe()
	}()

	select {
	case err = <-errch:
		return errors.Wrap(err, "server has failed")
	case <-ctx.Done():
	}

	c.Logger().Info("shutting down")

	// open alert streams must end before Shutdown can drain connections
	c.AlertBus().Close()

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(sctx)
}
