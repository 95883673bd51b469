package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/album-list/internal/album"
	"github.com/JakeFAU/album-list/internal/config"
	"github.com/JakeFAU/album-list/internal/metrics"
	"github.com/JakeFAU/album-list/internal/page"
)

const requestTimeout = 60 * time.Second

// Loader runs one page load.
type Loader interface {
	Load(ctx context.Context, pageURL string, target page.Target) page.Outcome
}

// Server wires HTTP handlers to the page controller.
type Server struct {
	router chi.Router
	loader Loader
	cfg    config.PageConfig
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(loader Loader, cfg config.PageConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		loader: loader,
		cfg:    cfg,
		logger: logger,
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(traceMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", s.albumPage)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/albums", s.listAlbums)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Nothing is held between page loads, so the service is ready once it serves.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<div id="{{.TargetID}}">{{.Content}}</div>
</body>
</html>
`))

type pageView struct {
	Title    string
	TargetID string
	Content  template.HTML
}

func (s *Server) albumPage(w http.ResponseWriter, r *http.Request) {
	target := page.NewContainer(s.cfg.TargetID)
	out := s.loader.Load(r.Context(), r.URL.RequestURI(), target)

	status := http.StatusOK
	if out.Kind == page.Malformed {
		status = http.StatusBadGateway
	}
	view := pageView{
		Title:    s.cfg.Title,
		TargetID: target.ID(),
		Content:  template.HTML(target.InnerHTML()), //nolint:gosec // escaped by page.RenderAlbums
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, view); err != nil {
		s.logger.Error("page write failed", zap.Error(err))
	}
}

type albumsResponse struct {
	Albums     []album.Album `json:"albums"`
	CallbackID string        `json:"callback_id"`
}

func (s *Server) listAlbums(w http.ResponseWriter, r *http.Request) {
	out := s.loader.Load(r.Context(), r.URL.RequestURI(), page.NewContainer(s.cfg.TargetID))
	switch out.Kind {
	case page.Success:
		albums := out.Albums
		if albums == nil {
			albums = []album.Album{}
		}
		writeJSON(w, http.StatusOK, albumsResponse{Albums: albums, CallbackID: out.CallbackID}, s.logger)
	case page.Timeout:
		writeError(w, http.StatusGatewayTimeout, "albums endpoint timed out", s.logger)
	default:
		writeError(w, http.StatusBadGateway, "albums endpoint returned a malformed response", s.logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *zap.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
