package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"casanexus/internal/config"
	"casanexus/internal/web"
)

// newRouter proxies /api/v1/listings and /api/v1/reservations to their
// services, which serve the same paths without the /api/v1 prefix.
func newRouter(cfg config.Services, limiter *web.RateLimiter, log *slog.Logger) (http.Handler, error) {
	listingsProxy, err := newProxy(cfg.ListingsURL, log)
	if err != nil {
		return nil, err
	}
	reservationsProxy, err := newProxy(cfg.ReservationsURL, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.RequestID, web.RequestID, web.RecoverPanic(log), web.AccessLog(log))
	r.Get("/healthz", web.Health(nil))

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Mount("/api/v1/listings", http.StripPrefix("/api/v1", listingsProxy))
		r.Mount("/api/v1/reservations", http.StripPrefix("/api/v1", reservationsProxy))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { web.NotFound(w, r, log) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { web.MethodNotAllowed(w, r, log) })

	return r, nil
}

func newProxy(rawURL string, log *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", rawURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", rawURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := middleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("upstream unavailable", "upstream", target.Host, "error", err)
			web.ErrorResponse(w, r, log, http.StatusBadGateway, "upstream service unavailable")
		},
	}, nil
}
