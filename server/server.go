// Package server exposes the services over HTTP. It speaks both wire
// dialects AWS clients use: the JSON protocol (action in the X-Amz-Target
// header, JSON bodies) and the query protocol (form-encoded Action
// parameter, XML responses). STS clients always use the latter.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/service"
	"github.com/tabeth/inhouseaws/store"
)

const (
	defaultMaxBodyBytes = 2 << 20
	readyzProbeID       = "readyz-probe"
)

// Options configure an App.
type Options struct {
	// AccountID and Region apply to requests whose signature does not name them.
	AccountID string
	Region    string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// App holds the HTTP handlers and the dependencies they dispatch to.
type App struct {
	Services *service.Services
	Store    *store.Store

	accountID    string
	region       string
	log          *slog.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64

	sqsActions map[string]actionFunc
	stsActions map[string]actionFunc
}

// New returns an App serving services on top of s.
func New(s *store.Store, services *service.Services, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	app := &App{
		Services:     services,
		Store:        s,
		accountID:    opts.AccountID,
		region:       opts.Region,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	app.sqsActions = app.registerSQSActions()
	app.stsActions = app.registerSTSActions()
	return app
}

// Router builds the HTTP routes. Every POST is an API call; the action is
// taken from the request rather than the path.
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.logged)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(app.maxBodyBytes))

	r.Get("/healthz", app.HealthzHandler)
	r.Get("/readyz", app.ReadyzHandler)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	r.Post("/", app.RootHandler)
	r.Post("/*", app.RootHandler)
	return r
}

// HealthzHandler reports that the process is serving.
func (app *App) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyzHandler reports whether the storage backend answers reads.
func (app *App) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	_, err := app.Store.Backend().Get(ctx, service.CollectionQueues, readyzProbeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		app.log.Warn("readiness probe failed", slog.Any("error", err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready\n"))
}

// RootHandler decodes the protocol envelope, identifies the caller and
// dispatches to the action.
func (app *App) RootHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := app.newCall(r)
	if err != nil {
		app.fail(w, c, err)
		app.metrics.ObserveRequest(c.service, c.action, errorCode(err), time.Since(start))
		return
	}
	w.Header().Set(headerRequestID, c.requestID)

	actions := app.sqsActions
	if c.service == serviceSTS {
		actions = app.stsActions
	}
	fn, ok := actions[c.action]
	if !ok {
		err := &service.Error{
			Kind:    service.ErrUnimplemented,
			Code:    service.CodeUnimplemented,
			Message: "The action " + c.action + " is not implemented.",
		}
		app.fail(w, c, err)
		app.metrics.ObserveRequest(c.service, c.action, errorCode(err), time.Since(start))
		return
	}

	result, err := fn(r.Context(), c)
	if err != nil {
		app.fail(w, c, err)
		app.metrics.ObserveRequest(c.service, c.action, errorCode(err), time.Since(start))
		return
	}
	c.proto.writeResult(w, c, result)
	app.metrics.ObserveRequest(c.service, c.action, "OK", time.Since(start))
}

// fail renders err. Domain errors are the sender's fault; anything else is
// reported as an internal failure carrying the original message.
func (app *App) fail(w http.ResponseWriter, c *call, err error) {
	e, ok := service.AsError(err)
	status := http.StatusBadRequest
	if !ok {
		app.log.Error("request failed",
			slog.String("service", c.service),
			slog.String("action", c.action),
			slog.String("request_id", c.requestID),
			slog.Any("error", err))
		e = &service.Error{Code: service.CodeInternalFailure, Message: err.Error()}
		status = http.StatusInternalServerError
	}
	c.proto.writeError(w, c, e, status, ok)
}

func errorCode(err error) string {
	if e, ok := service.AsError(err); ok {
		return e.Code
	}
	return service.CodeInternalFailure
}
