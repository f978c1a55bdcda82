package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/ports"
	"pagepilot/internal/usecase"
	"pagepilot/pkg/logg"
)

const (
	serverName = "HTTPServer"

	maxBodyBytes = 1 << 20
)

type Server struct {
	config   *config.ServerConfig
	logger   *zap.Logger
	usecase  *usecase.Service
	store    ports.ArtifactStore
	upgrader websocket.Upgrader

	httpServer *http.Server
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
	Store   ports.ArtifactStore
}

func NewServer(params Params) *Server {
	return &Server{
		config:  params.Config.ServerConfig,
		logger:  params.Logger.With(zap.String(logg.Layer, serverName)),
		usecase: params.Usecase,
		store:   params.Store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Router builds the HTTP API, the artifact file servers and the operational
// endpoints.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)
	router.Use(corsMiddleware)

	router.Route("/api", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Post("/map", s.handleMap)
		r.Post("/extract", s.handleExtract)
		r.Post("/describe", s.handleDescribe)
		r.Get("/results", s.handleListArtifacts(entity.ArtifactResults))
		r.Get("/screenshots", s.handleListArtifacts(entity.ArtifactScreenshots))

		r.Route("/selections", func(r chi.Router) {
			r.Post("/", s.handleStartSelection)
			r.Get("/{id}", s.handleGetSelection)
			r.Delete("/{id}", s.handleStopSelection)
			r.Get("/{id}/stream", s.handleSelectionStream)
		})
	})

	s.mountArtifacts(router, entity.ArtifactScreenshots)
	s.mountArtifacts(router, entity.ArtifactResults)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", s.handleHealthz)

	return router
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) mountArtifacts(router chi.Router, kind entity.ArtifactKind) {
	prefix := "/" + string(kind) + "/"
	router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.store.Dir(kind)))))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}
