package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/handler/dto"
	"github.com/yourusername/evaluation-api/internal/service"
	"github.com/yourusername/evaluation-api/internal/service/session"
	"github.com/yourusername/evaluation-api/pkg/auth"
)

const sessionComponent = "SessionHandler"

// SessionHandler обрабатывает запросы сессий прохождения оценок
type SessionHandler struct {
	sessions   *service.SessionManager
	jwtService *auth.JWTService
}

// NewSessionHandler создает обработчик сессий
func NewSessionHandler(sessions *service.SessionManager, jwtService *auth.JWTService) *SessionHandler {
	return &SessionHandler{sessions: sessions, jwtService: jwtService}
}

// OpenSession открывает сессию по оценке
// POST /api/evaluations/:id/sessions
func (h *SessionHandler) OpenSession(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	evaluationID := c.MustGet("evaluationID").(uint)

	ctrl, err := h.sessions.Open(c.Request.Context(), evaluationID, learner)
	if ctrl == nil {
		handleError(c, sessionComponent, err)
		return
	}
	h.respondSession(c, ctrl, learner, http.StatusCreated, err)
}

// GetSession возвращает снимок сессии
// GET /api/sessions/:sid
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.withSession(c, func(ctrl *session.Controller) (session.Snapshot, error) {
		return ctrl.Snapshot()
	})
}

// ReloadSession повторяет загрузку оценки после ошибки
// POST /api/sessions/:sid/load
func (h *SessionHandler) ReloadSession(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	ctrl, err := h.sessions.Reload(c.Request.Context(), c.MustGet("sessionID").(string), learner)
	if ctrl == nil {
		handleError(c, sessionComponent, err)
		return
	}
	h.respondSession(c, ctrl, learner, http.StatusOK, err)
}

// Next переходит к следующему вопросу
// POST /api/sessions/:sid/next
func (h *SessionHandler) Next(c *gin.Context) {
	h.withSession(c, func(ctrl *session.Controller) (session.Snapshot, error) {
		return ctrl.Next()
	})
}

// Previous переходит к предыдущему вопросу
// POST /api/sessions/:sid/previous
func (h *SessionHandler) Previous(c *gin.Context) {
	h.withSession(c, func(ctrl *session.Controller) (session.Snapshot, error) {
		return ctrl.Previous()
	})
}

// GoTo переходит к вопросу по индексу
// POST /api/sessions/:sid/goto
func (h *SessionHandler) GoTo(c *gin.Context) {
	var req dto.GoToRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}
	h.withSession(c, func(ctrl *session.Controller) (session.Snapshot, error) {
		return ctrl.GoTo(*req.Index)
	})
}

// Answer изменяет ответ на вопрос
// PUT /api/sessions/:sid/answer
func (h *SessionHandler) Answer(c *gin.Context) {
	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}
	h.withSession(c, func(ctrl *session.Controller) (session.Snapshot, error) {
		return ctrl.Answer(req.ToEdit())
	})
}

// Submit отправляет попытку или повторяет отправку после ошибки
// POST /api/sessions/:sid/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	ctrl, err := h.sessions.Get(c.MustGet("sessionID").(string), learner)
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}

	attempt, err := ctrl.Submit(c.Request.Context())
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}

	snap, err := ctrl.Snapshot()
	if err != nil {
		// сессию закрыли сразу после завершения; попытка уже принята
		c.JSON(http.StatusOK, gin.H{"attempt": attempt})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": attempt, "session": snap})
}

// Abandon закрывает сессию без отправки
// DELETE /api/sessions/:sid
func (h *SessionHandler) Abandon(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	if err := h.sessions.Abandon(c.MustGet("sessionID").(string), learner); err != nil {
		handleError(c, sessionComponent, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Retake открывает новую сессию по той же оценке
// POST /api/sessions/:sid/retake
func (h *SessionHandler) Retake(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	ctrl, err := h.sessions.Retake(c.Request.Context(), c.MustGet("sessionID").(string), learner)
	if ctrl == nil {
		handleError(c, sessionComponent, err)
		return
	}
	h.respondSession(c, ctrl, learner, http.StatusCreated, err)
}

// IssueWSTicket выдает тикет для подписки на события сессии
// POST /api/sessions/:sid/ws-ticket
func (h *SessionHandler) IssueWSTicket(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	ctrl, err := h.sessions.Get(c.MustGet("sessionID").(string), learner)
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}
	ticket, err := h.jwtService.GenerateWSTicket(learner, ctrl.ID())
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ws_ticket": ticket})
}

// withSession находит сессию учащегося, выполняет команду и отвечает снимком
func (h *SessionHandler) withSession(c *gin.Context, command func(ctrl *session.Controller) (session.Snapshot, error)) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	ctrl, err := h.sessions.Get(c.MustGet("sessionID").(string), learner)
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}
	snap, err := command(ctrl)
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// respondSession отвечает снимком и тикетом. Если загрузка не удалась,
// статус берется из ошибки, а снимок позволяет повторить загрузку.
func (h *SessionHandler) respondSession(c *gin.Context, ctrl *session.Controller, learner entity.Learner, okStatus int, loadErr error) {
	snap, err := ctrl.Snapshot()
	if err != nil {
		handleError(c, sessionComponent, err)
		return
	}

	resp := dto.SessionResponse{Session: snap}
	if ticket, err := h.jwtService.GenerateWSTicket(learner, ctrl.ID()); err == nil {
		resp.WSTicket = ticket
	} else {
		log.Printf("[%s] Не удалось выдать WS-тикет для сессии %s: %v", sessionComponent, ctrl.ID(), err)
	}

	if loadErr != nil {
		status, errorType := errorStatus(loadErr)
		c.JSON(status, gin.H{"error": loadErr.Error(), "error_type": errorType, "session": resp.Session, "ws_ticket": resp.WSTicket})
		return
	}
	c.JSON(okStatus, resp)
}
