package history

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/students"
	"github.com/classpulse/backend/pkg/response"
)

// StudentLog groups one student's event log for the history detail view.
type StudentLog struct {
	SessionID         string                `json:"session_id"`
	Name              string                `json:"name"`
	UserID            uuid.UUID             `json:"user_id"`
	Events            []models.SessionEvent `json:"events"`
	AnsweredQuestions map[string]string     `json:"answered_questions"`
}

// Detail is the full history view: the record, finalized questions, roster,
// and per-student logs.
type Detail struct {
	models.History
	FinishedQuestions []models.FinishedQuestion `json:"finished_questions"`
	Participants      []models.Participant      `json:"participants"`
	StudentLogs       []StudentLog              `json:"student_logs"`
	ParticipantCount  int                       `json:"participant_count"`
}

// Handler handles history read endpoints.
type Handler struct {
	repo     *Repository
	students *students.Repository
}

// NewHandler creates a history handler.
func NewHandler(repo *Repository, students *students.Repository) *Handler {
	return &Handler{repo: repo, students: students}
}

// GetByID handles GET /histories/:id.
func (h *Handler) GetByID(c *gin.Context) {
	historyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return
	}
	ctx := c.Request.Context()

	rec, err := h.repo.GetByID(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load history")
		return
	}
	if rec == nil {
		response.NotFound(c, "history not found")
		return
	}

	finished, err := h.repo.ListFinishedQuestions(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load finished questions")
		return
	}
	participants, err := h.repo.ListParticipants(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load participants")
		return
	}
	sessions, err := h.students.ListByHistory(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load student sessions")
		return
	}
	events, err := h.students.ListEvents(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load session events")
		return
	}

	bySession := make(map[string][]models.SessionEvent)
	for _, e := range events {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}
	logs := make([]StudentLog, 0, len(sessions))
	for _, s := range sessions {
		logs = append(logs, StudentLog{
			SessionID:         s.SessionID,
			Name:              s.Name,
			UserID:            s.UserID,
			Events:            bySession[s.SessionID],
			AnsweredQuestions: s.AnsweredFor,
		})
	}

	response.OK(c, Detail{
		History:           *rec,
		FinishedQuestions: finished,
		Participants:      participants,
		StudentLogs:       logs,
		ParticipantCount:  len(sessions),
	})
}

// UserHistory is the response for GET /users/me/history.
type UserHistory struct {
	AsTeacher []Summary `json:"as_teacher"`
	AsStudent []Summary `json:"as_student"`
}

// ListMine handles GET /users/me/history.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()

	asTeacher, err := h.repo.ListByTeacher(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load teacher history")
		return
	}
	asStudent, err := h.repo.ListByParticipant(ctx, userID)
	if err != nil {
		response.Internal(c, "failed to load student history")
		return
	}
	response.OK(c, UserHistory{AsTeacher: asTeacher, AsStudent: asStudent})
}

// ExportCSV handles GET /histories/:id/export, streaming per-question tallies
// as CSV.
func (h *Handler) ExportCSV(c *gin.Context) {
	historyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return
	}
	ctx := c.Request.Context()

	rec, err := h.repo.GetByID(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load history")
		return
	}
	if rec == nil {
		response.NotFound(c, "history not found")
		return
	}
	finished, err := h.repo.ListFinishedQuestions(ctx, historyID)
	if err != nil {
		response.Internal(c, "failed to load finished questions")
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="results-`+historyID.String()+`.csv"`)
	c.String(http.StatusOK, BuildResultsCSV(finished))
}
