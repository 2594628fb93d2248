package web

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// requestTimeout bounds the short routes; streams are not bounded.
const requestTimeout = 30 * time.Second

// Server wraps the HTTP server and handlers.
type Server struct {
	addr         string
	allowOrigins []string
	handlers     *Handlers
}

// NewServer creates a server for addr. allowOrigins lists the origins
// allowed to call the API from another site; empty means same-origin only.
func NewServer(addr string, allowOrigins []string, deps Deps) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: failed to sub static fs: %w", err)
	}
	return &Server{
		addr:         addr,
		allowOrigins: allowOrigins,
		handlers:     NewHandlers(deps, subFS),
	}, nil
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if l := debug.Logger(); l != nil && debug.IsEnabled(debug.LevelVerbose) {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: l, NoColor: true}))
	}
	r.Use(middleware.Recoverer)
	if len(s.allowOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.allowOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}).Handler)
	}

	h := s.handlers
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/", h.ServeIndex)
		r.Get("/state", h.HandleState)
		r.Post("/permission", h.HandlePermission)
		r.Post("/capture", h.HandleCapture)
		r.Post("/retake", h.HandleRetake)
		r.Get("/photo", h.HandlePhoto)
		r.Get("/photo/meta", h.HandlePhotoMeta)
		r.Get("/captures", h.HandleCaptures)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	})
	r.Get("/preview", h.HandlePreview)
	r.Get("/status/stream", h.HandleStatusStream)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully. Captures started over HTTP live as long as ctx.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.base = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
