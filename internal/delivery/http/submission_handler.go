package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/delivery/http/middleware"
	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// userIDHeader carries the caller's identity. Authentication happens upstream.
const userIDHeader = "X-User-ID"

// SubmitRequest is the body of the submission endpoints.
type SubmitRequest struct {
	ProblemID int64  `json:"problem_id" binding:"required"`
	Code      string `json:"code"`
	Language  string `json:"language" binding:"required"`
}

// SubmissionHandler handles HTTP requests for code submissions.
type SubmissionHandler struct {
	judge  *usecase.JudgeService
	logger *zap.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(judge *usecase.JudgeService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		judge:  judge,
		logger: logger,
	}
}

type judgeFunc func(c *gin.Context, userID int64, req *SubmitRequest) (*domain.Submission, error)

// Submit handles POST /api/v1/submissions and returns the graded submission.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	h.handle(c, http.StatusOK, func(c *gin.Context, userID int64, req *SubmitRequest) (*domain.Submission, error) {
		return h.judge.GradeSubmission(c.Request.Context(), userID, req.ProblemID, req.Code, domain.ParseLanguage(req.Language))
	})
}

// Test handles POST /api/v1/submissions/test. Nothing is stored.
func (h *SubmissionHandler) Test(c *gin.Context) {
	h.handle(c, http.StatusOK, func(c *gin.Context, userID int64, req *SubmitRequest) (*domain.Submission, error) {
		return h.judge.TestCode(c.Request.Context(), userID, req.ProblemID, req.Code, domain.ParseLanguage(req.Language))
	})
}

// Queue handles POST /api/v1/submissions/queue and returns 202 with the PENDING submission.
func (h *SubmissionHandler) Queue(c *gin.Context) {
	h.handle(c, http.StatusAccepted, func(c *gin.Context, userID int64, req *SubmitRequest) (*domain.Submission, error) {
		return h.judge.Enqueue(c.Request.Context(), userID, req.ProblemID, req.Code, domain.ParseLanguage(req.Language))
	})
}

func (h *SubmissionHandler) handle(c *gin.Context, okStatus int, run judgeFunc) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.PayloadTooLarge(c, maxErr.Limit)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	sub, err := run(c, userID, &req)
	if err != nil && sub != nil && !errors.Is(err, domain.ErrGradingCanceled) {
		// The verdict already carries the failure; report it like any other result.
		h.logger.Error("Grading failed",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err),
		)
		err = nil
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(okStatus, sub)
}

// GetByID handles GET /api/v1/submissions/:id
func (h *SubmissionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID format"})
		return
	}

	sub, err := h.judge.GetSubmission(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetForProblem handles GET /api/v1/problems/:problemId/submission for the calling user.
func (h *SubmissionHandler) GetForProblem(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	problemID, err := strconv.ParseInt(c.Param("problemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid problem ID"})
		return
	}

	sub, err := h.judge.GetUserSubmission(c.Request.Context(), userID, problemID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListByUser handles GET /api/v1/users/:userId/submissions
func (h *SubmissionHandler) ListByUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	subs, err := h.judge.ListUserSubmissions(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (h *SubmissionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedLanguage),
		errors.Is(err, domain.ErrEmptySourceCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProblemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
	case errors.Is(err, domain.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
	case errors.Is(err, domain.ErrAlreadyJudging):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPublishFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	case errors.Is(err, domain.ErrGradingCanceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Grading canceled"})
	default:
		h.logger.Error("Submission request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// requireUser reads the caller id from X-User-ID and writes 401 when it is
// missing or malformed.
func requireUser(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(userIDHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid " + userIDHeader + " header"})
		return 0, false
	}
	return id, true
}
