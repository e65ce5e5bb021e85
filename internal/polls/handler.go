package polls

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/response"
)

// QuestionInput is one question in a create-poll request.
type QuestionInput struct {
	Text         string   `json:"text" binding:"required"`
	Options      []string `json:"options" binding:"required,min=2"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Title               string          `json:"title" binding:"required"`
	Questions           []QuestionInput `json:"questions" binding:"required,min=1"`
	DefaultTimeLimitSec int             `json:"default_time_limit_sec"`
}

// Handler handles poll authoring endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a polls handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /polls (teacher only).
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	defaultLimit := req.DefaultTimeLimitSec
	if defaultLimit <= 0 {
		defaultLimit = 60
	}

	questions := make([]models.Question, 0, len(req.Questions))
	for qi, q := range req.Questions {
		limit := q.TimeLimitSec
		if limit <= 0 {
			limit = defaultLimit
		}
		options := make([]models.Option, 0, len(q.Options))
		for oi, text := range q.Options {
			options = append(options, models.Option{
				ID:   fmt.Sprintf("o%d", oi+1),
				Text: text,
			})
		}
		questions = append(questions, models.Question{
			ID:           fmt.Sprintf("q%d", qi+1),
			Text:         q.Text,
			Options:      options,
			TimeLimitSec: limit,
		})
	}

	p := &models.Poll{
		TeacherID:           userID,
		Title:               req.Title,
		Questions:           questions,
		DefaultTimeLimitSec: defaultLimit,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		response.Internal(c, "failed to create poll")
		return
	}
	response.Created(c, p)
}

// ListMine handles GET /polls (teacher only).
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByTeacher(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list polls")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /polls/:id.
func (h *Handler) GetByID(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), pollID)
	if err != nil {
		response.Internal(c, "failed to load poll")
		return
	}
	if p == nil {
		response.NotFound(c, "poll not found")
		return
	}
	response.OK(c, p)
}

// Delete handles DELETE /polls/:id (owning teacher only).
func (h *Handler) Delete(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	deleted, err := h.repo.Delete(c.Request.Context(), pollID, userID)
	if err != nil {
		response.Internal(c, "failed to delete poll")
		return
	}
	if !deleted {
		response.NotFound(c, "poll not found")
		return
	}
	response.NoContent(c)
}
