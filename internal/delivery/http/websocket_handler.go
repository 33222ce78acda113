package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	writeWait           = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open for the API as well
	},
}

// WebSocketHandler streams submission status until a verdict is reached.
type WebSocketHandler struct {
	judge        *usecase.JudgeService
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(judge *usecase.JudgeService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		judge:        judge,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Stream handles GET /api/v1/submissions/:id/stream (WebSocket upgrade).
// Every status change is pushed; the connection closes after the terminal one.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission ID format"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.judge.GetSubmission(ctx, id); errors.Is(err, domain.ErrSubmissionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("submission_id", idStr))

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last domain.SubmissionStatus
	for {
		sub, err := h.judge.GetSubmission(ctx, id)
		if err != nil {
			_ = h.write(conn, gin.H{"error": "Submission not found"})
			return
		}

		if sub.Status != last {
			if err := h.write(conn, sub); err != nil {
				h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			last = sub.Status
		}

		if sub.Status.IsTerminal() {
			h.logger.Debug("Submission reached terminal state, closing WebSocket", zap.String("submission_id", idStr))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "judged"),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
