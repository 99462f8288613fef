// Package api exposes the inbox, todo and sweep operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/task-reminders/internal/i18n"
	"github.com/nhle/task-reminders/internal/inbox"
	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/reconcile"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/internal/tasks"
)

// userHeader carries the caller's user id. Authentication happens in
// front of this service.
const userHeader = "X-User-ID"

// Inbox is the notification surface the API serves.
type Inbox interface {
	ListRendered(ctx context.Context, userID string) ([]i18n.Rendered, error)
	MarkRead(ctx context.Context, userID string, target inbox.Target, asUnread bool) (int, error)
	Dismiss(ctx context.Context, userID string, target inbox.Target) (int, error)
	Unmute(ctx context.Context, userID, taskID string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// Todos is the task subsystem the API serves.
type Todos interface {
	Create(ctx context.Context, todo model.Todo) (model.Todo, error)
	Update(ctx context.Context, userID, id string, patch tasks.Patch) (model.Todo, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, filter store.TodoFilter) ([]model.Todo, error)
}

// Events applies task changes reported by an external task subsystem.
type Events interface {
	Apply(ctx context.Context, change model.TaskChange, now time.Time) (lifecycle.Outcome, error)
}

// Sweeps runs and reports reconciliation sweeps.
type Sweeps interface {
	RunOnce(ctx context.Context) (reconcile.Report, error)
	Status() reconcile.Status
}

// Deps are the services behind the routes. Nil members disable their
// route group.
type Deps struct {
	Inbox  Inbox
	Todos  Todos
	Events Events
	Sweeps Sweeps
}

// Server is the HTTP front of the engine.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
	now    func() time.Time
}

// NewServer creates a Server and registers its routes.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		deps:   deps,
		logger: logger,
		router: router,
		now:    time.Now,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if deps.Inbox != nil {
		n := api.Group("/notifications", requireUser)
		{
			n.GET("", s.handleListNotifications)
			n.POST("/read", s.handleMarkRead)
			n.POST("/:id/read", s.handleMarkOneRead)
			n.POST("/dismiss", s.handleDismiss)
			n.POST("/:id/dismiss", s.handleDismissOne)
			n.DELETE("", s.handleDeleteNotifications)
		}
		api.DELETE("/mutes/:task_id", requireUser, s.handleUnmute)
	}
	if deps.Todos != nil {
		t := api.Group("/todos", requireUser)
		{
			t.GET("", s.handleListTodos)
			t.POST("", s.handleCreateTodo)
			t.PATCH("/:id", s.handleUpdateTodo)
			t.DELETE("/:id", s.handleDeleteTodo)
		}
	}
	if deps.Events != nil {
		api.POST("/tasks/events", s.handleTaskEvent)
	}
	if deps.Sweeps != nil {
		api.GET("/sweep", s.handleSweepStatus)
		api.POST("/sweep", s.handleRunSweep)
	}

	return s
}

// Handler returns the router for use with an http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requireUser(c *gin.Context) {
	if c.GetHeader(userHeader) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "missing " + userHeader + " header",
		})
		return
	}
	c.Next()
}

func userID(c *gin.Context) string { return c.GetHeader(userHeader) }

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
