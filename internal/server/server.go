package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/colony-counter/internal/config"
	"github.com/ironsheep/colony-counter/internal/imaging"
	"github.com/ironsheep/colony-counter/internal/session"
)

//go:embed static/index.html
var static embed.FS

// Engine is the vision engine as seen by the HTTP layer.
type Engine interface {
	session.Engine
	Versions() map[string]string
}

// Server handles HTTP requests for the colony counter.
type Server struct {
	cfg      *config.Config
	engine   Engine
	sessions *session.Manager
	log      *slog.Logger
	router   *gin.Engine
}

// New creates a server. The engine is shared by all sessions.
func New(cfg *config.Config, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	opts := session.Options{
		Limits: imaging.Limits{
			MaxBytes:  cfg.MaxUploadBytes,
			MaxWidth:  cfg.MaxWidth,
			MaxHeight: cfg.MaxHeight,
		},
		Defaults:   defaultParams(cfg),
		PaintDelay: cfg.PaintDelay,
		Logger:     logger,
	}

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		sessions: session.NewManager(engine, opts, cfg.SessionTTL),
		log:      logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes + 1<<20

	r.GET("/", s.handleIndex)

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/sessions", s.handleCreateSession)

	sess := api.Group("/sessions/:id")
	sess.GET("", s.handleSnapshot)
	sess.DELETE("", s.handleDeleteSession)
	sess.POST("/image", s.handleUpload)
	sess.POST("/process", s.handleProcess)
	sess.POST("/reset", s.handleReset)
	sess.GET("/original.png", s.handleSurface(surfaceOriginal))
	sess.GET("/annotated.png", s.handleSurface(surfaceAnnotated))

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves until ctx is done, then shuts down gracefully and resets every
// session.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		s.sessions.Run(janitorCtx)
	}()
	defer func() {
		stopJanitor()
		<-janitorDone
	}()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start))
	}
}
