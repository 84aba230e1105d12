package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fmueller/voxapi/internal/logging"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/transcribe"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

// Models is the model lifecycle as seen by the HTTP layer.
type Models interface {
	Start(ctx context.Context)
	State() model.State
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64 string) (transcribe.Result, error)
}

type Options struct {
	APIKey          string
	AllowedOrigins  []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

type Server struct {
	models Models
	opts   Options
	logger *zap.Logger
	http   *http.Server
}

func New(models Models, transcriber Transcriber, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{models: models, opts: opts, logger: logger}
	s.http = &http.Server{
		Handler:           s.routes(transcriber),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          logging.StdLogger(logger),
	}
	return s
}

func (s *Server) routes(transcriber Transcriber) http.Handler {
	h := &handlers{
		models:       s.models,
		transcriber:  transcriber,
		maxBodyBytes: s.opts.MaxBodyBytes,
		logger:       s.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger.Named("access")))
	r.Use(recoverer(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(s.opts.APIKey))
		r.Get("/", h.root)
		r.Post("/transcribe/", h.transcribe)
		r.Post("/transcribe", h.transcribe)
	})
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe binds addr, then serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and starts loading the model in the
// background. When ctx is done, in-flight requests get ShutdownTimeout to
// finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	s.models.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", zap.Duration("timeout", s.shutdownTimeout()))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout())
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.opts.ShutdownTimeout <= 0 {
		return 15 * time.Second
	}
	return s.opts.ShutdownTimeout
}
