package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/task-reminders/internal/inbox"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/reconcile"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/internal/tasks"
)

// targetRequest selects notifications for the bulk read and dismiss
// endpoints. Exactly one of TaskID or All must be set.
type targetRequest struct {
	TaskID string `json:"task_id"`
	All    bool   `json:"all"`
	Unread bool   `json:"unread"`
}

func (r targetRequest) target() (inbox.Target, bool) {
	switch {
	case r.All && r.TaskID == "":
		return inbox.All(), true
	case !r.All && r.TaskID != "":
		return inbox.ByTask(r.TaskID), true
	default:
		return inbox.Target{}, false
	}
}

// todoRequest is the body of todo create and update calls. DueDate is a
// calendar date (2006-01-02) or an RFC 3339 timestamp; an empty string
// clears it.
type todoRequest struct {
	Title     *string `json:"title"`
	DueDate   *string `json:"due_date"`
	Completed *bool   `json:"is_completed"`
}

func (s *Server) handleListNotifications(c *gin.Context) {
	items, err := s.deps.Inbox.ListRendered(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"count":   len(items),
	})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	target, ok := req.target()
	if !ok {
		badRequest(c, "exactly one of task_id or all is required")
		return
	}
	n, err := s.deps.Inbox.MarkRead(c.Request.Context(), userID(c), target, req.Unread)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

func (s *Server) handleMarkOneRead(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	n, err := s.deps.Inbox.MarkRead(c.Request.Context(), userID(c), inbox.ByID(c.Param("id")), unread)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

func (s *Server) handleDismiss(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	target, ok := req.target()
	if !ok {
		badRequest(c, "exactly one of task_id or all is required")
		return
	}
	n, err := s.deps.Inbox.Dismiss(c.Request.Context(), userID(c), target)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dismissed": n})
}

func (s *Server) handleDismissOne(c *gin.Context) {
	n, err := s.deps.Inbox.Dismiss(c.Request.Context(), userID(c), inbox.ByID(c.Param("id")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dismissed": n})
}

func (s *Server) handleDeleteNotifications(c *gin.Context) {
	n, err := s.deps.Inbox.DeleteAll(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

func (s *Server) handleUnmute(c *gin.Context) {
	if err := s.deps.Inbox.Unmute(c.Request.Context(), userID(c), c.Param("task_id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListTodos(c *gin.Context) {
	var filter store.TodoFilter
	if v := c.Query("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "completed must be a boolean")
			return
		}
		filter.Completed = &completed
	}
	if v := c.Query("due"); v != "" {
		filter.DueDate = &v
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	todos, err := s.deps.Todos.List(c.Request.Context(), userID(c), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": todos, "count": len(todos)})
}

func (s *Server) handleCreateTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		badRequest(c, "title is required")
		return
	}

	todo := model.Todo{UserID: userID(c), Title: *req.Title}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseDue(*req.DueDate)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		todo.DueDate = &due
	}
	if req.Completed != nil {
		todo.Completed = *req.Completed
	}

	created, err := s.deps.Todos.Create(c.Request.Context(), todo)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": created})
}

func (s *Server) handleUpdateTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	patch := tasks.Patch{Title: req.Title, Completed: req.Completed}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			patch.ClearDue = true
		} else {
			due, err := parseDue(*req.DueDate)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			patch.DueDate = &due
		}
	}

	updated, err := s.deps.Todos.Update(c.Request.Context(), userID(c), c.Param("id"), patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": updated})
}

func (s *Server) handleDeleteTodo(c *gin.Context) {
	if err := s.deps.Todos.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTaskEvent records a change reported by an external task subsystem
// and runs the reactive path for it. A change that could not be recorded
// is refused so the sender retries; once recorded, reminder failures are
// acknowledged and the next sweep catches up.
func (s *Server) handleTaskEvent(c *gin.Context) {
	var change model.TaskChange
	if err := c.ShouldBindJSON(&change); err != nil {
		badRequest(c, err.Error())
		return
	}

	out, err := s.deps.Events.Apply(c.Request.Context(), change, s.now())
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"success": true, "outcome": out})
	case model.IsValidation(err):
		badRequest(c, err.Error())
	case errors.Is(err, tasks.ErrNotRecorded):
		s.fail(c, err)
	default:
		s.logger.Warn("task event deferred to next sweep",
			"task_id", change.Task.ID, "user_id", change.Task.UserID, "error", err)
		c.JSON(http.StatusAccepted, gin.H{"success": true, "deferred": true})
	}
}

func (s *Server) handleSweepStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.deps.Sweeps.Status()})
}

func (s *Server) handleRunSweep(c *gin.Context) {
	report, err := s.deps.Sweeps.RunOnce(c.Request.Context())
	if errors.Is(err, reconcile.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// fail maps service errors to responses. Store failures are reported
// generically; details stay in the log.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	case errors.Is(err, inbox.ErrInvalidTarget), model.IsValidation(err):
		badRequest(c, err.Error())
	case errors.Is(err, inbox.ErrUnavailable), model.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": inbox.ErrUnavailable.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// parseDue accepts a calendar date or an RFC 3339 timestamp. A timestamp
// is reduced to its calendar date in the offset it was sent with.
func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("due_date must be YYYY-MM-DD or RFC 3339")
	}
	return model.CalendarDate(t), nil
}
