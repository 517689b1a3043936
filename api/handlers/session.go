package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stfn-ko/Wasabi/internal/model"
)

// JournalReader is the read side of the session journal.
type JournalReader interface {
	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
	List(ctx context.Context, limit int) ([]*model.SessionRecord, error)
	CountOpen(ctx context.Context) (int, error)
}

// Stats reports live counts for the health endpoint.
type Stats interface {
	LiveSessions() int
	Receivers() int
}

// SessionHandler serves health and journal queries.
type SessionHandler struct {
	stats   Stats
	journal JournalReader
}

// NewSessionHandler creates a new SessionHandler. journal may be nil when no journal is configured.
func NewSessionHandler(stats Stats, journal JournalReader) *SessionHandler {
	return &SessionHandler{
		stats:   stats,
		journal: journal,
	}
}

// SessionResponse represents a journal record in API responses.
type SessionResponse struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Peer        string `json:"peer"`
	State       string `json:"state"`
	CloseReason string `json:"closeReason,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
	FramesIn    int64  `json:"framesIn"`
	FramesOut   int64  `json:"framesOut"`
	Duration    string `json:"duration"`
	OpenedAt    string `json:"openedAt"`
	ClosedAt    string `json:"closedAt,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Receivers int    `json:"receivers"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(r *model.SessionRecord) *SessionResponse {
	resp := &SessionResponse{
		ID:          r.ID,
		Role:        string(r.Role),
		Peer:        r.Peer,
		State:       r.State.String(),
		CloseReason: r.CloseReason,
		ErrorKind:   r.ErrorKind,
		FramesIn:    r.FramesIn,
		FramesOut:   r.FramesOut,
		Duration:    formatDuration(r.Duration()),
		OpenedAt:    r.OpenedAt.Format(time.RFC3339),
	}
	if r.ClosedAt != nil {
		resp.ClosedAt = r.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Health handles GET /health.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Sessions:  h.stats.LiveSessions(),
		Receivers: h.stats.Receivers(),
	})
}

// List handles GET /api/sessions?limit=N - lists journal records, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	if h.journal == nil {
		sendError(c, http.StatusNotFound, "JOURNAL_DISABLED", "Session journal is not enabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	response := make([]*SessionResponse, len(records))
	for i, rec := range records {
		response[i] = toSessionResponse(rec)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific journal record.
func (h *SessionHandler) Get(c *gin.Context) {
	if h.journal == nil {
		sendError(c, http.StatusNotFound, "JOURNAL_DISABLED", "Session journal is not enabled")
		return
	}

	sessionID := c.Param("id")
	rec, err := h.journal.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(rec))
}

// RegisterRoutes registers the health route on r and the journal routes under rg.
func (h *SessionHandler) RegisterRoutes(r gin.IRoutes, rg *gin.RouterGroup) {
	r.GET("/health", h.Health)

	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
	}
}
