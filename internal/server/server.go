package server

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/exchange"
	"github.com/milkywaybrain/exchangeloader/internal/metrics"
	"github.com/milkywaybrain/exchangeloader/internal/selection"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Refresher rebuilds the exchange widget.
type Refresher interface {
	Refresh(ctx context.Context) exchange.Result
}

// Route is one endpoint of the document server.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server hosts the document holding the exchange widget.
type Server struct {
	widget    string
	refresher Refresher
	doc       selection.Locator
	feed      http.Handler
	logger    zerolog.Logger
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>Exchanges</title></head>
<body>
<form>
{{.}}</form>
</body>
</html>
`))

// New creates a Server for the configured widget.
// feed serves the websocket snapshot feed and may be nil.
func New(cfg *config.Widget, refresher Refresher, doc selection.Locator, feed http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		widget:    cfg.Name,
		refresher: refresher,
		doc:       doc,
		feed:      feed,
		logger:    logger,
	}
}

// Router returns the multiplexor router of all endpoints.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	routes := []Route{
		{"Index", http.MethodGet, "/", s.getIndex},
		{"Options", http.MethodGet, "/options", s.getOptions},
		{"Refresh", http.MethodPost, "/refresh", s.postRefresh},
		{"Metrics", http.MethodGet, "/metrics", metrics.Handler().ServeHTTP},
	}
	if s.feed != nil {
		routes = append(routes, Route{"Feed", http.MethodGet, "/ws", s.feed.ServeHTTP})
	}

	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(s.requestLogger(route.HandlerFunc, route.Name))
	}
	return router
}

// ListenAndServe serves the router on addr till ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("address", addr).Msg("document server started")

	select {
	case err := <-errCh:
		return errors.Wrap(err, "document server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Stack().Err(errors.WithStack(err)).Msg("document server shutdown")
		}
		return ctx.Err()
	}
}

func (s *Server) requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("route", name).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func (s *Server) lookup(w http.ResponseWriter) (selection.Widget, bool) {
	widget, ok := s.doc.Lookup(s.widget)
	if !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
	}
	return widget, ok
}

func (s *Server) getIndex(w http.ResponseWriter, _ *http.Request) {
	widget, ok := s.lookup(w)
	if !ok {
		return
	}

	var sel bytes.Buffer
	if err := selection.RenderSelect(&sel, widget); err != nil {
		s.renderErr(w, err)
		return
	}
	var body bytes.Buffer
	// The select is produced by an escaping template already.
	if err := page.Execute(&body, template.HTML(sel.String())); err != nil {
		s.renderErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = body.WriteTo(w)
}

// getOptions serves only the option elements, for swapping them into an
// existing select.
func (s *Server) getOptions(w http.ResponseWriter, _ *http.Request) {
	widget, ok := s.lookup(w)
	if !ok {
		return
	}

	var body bytes.Buffer
	if err := selection.RenderOptions(&body, widget.Options()); err != nil {
		s.renderErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = body.WriteTo(w)
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.refresher.Refresh(r.Context())
	switch {
	case res.OK():
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(res.Err, exchange.ErrTargetMissing):
		http.Error(w, "widget not found", http.StatusNotFound)
	case exchange.IsFetchFailure(res.Err):
		http.Error(w, "exchanges not loaded", http.StatusBadGateway)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) renderErr(w http.ResponseWriter, err error) {
	s.logger.Error().Stack().Err(errors.WithStack(err)).Msg("rendering document")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
