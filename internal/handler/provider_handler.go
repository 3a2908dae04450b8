package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/evaluation-api/internal/client/collab"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
	"github.com/yourusername/evaluation-api/internal/handler/dto"
	"github.com/yourusername/evaluation-api/internal/service/grading"
)

const providerComponent = "ProviderHandler"

// ProviderHandler публикует контракты коллабораторов (поставщик оценок,
// сервис оценивания, история) поверх локального сервиса оценивания.
// Маршруты защищены сервисным ключом.
type ProviderHandler struct {
	grading     *grading.Service
	evaluations repository.EvaluationRepository
	maxLimit    int
}

// NewProviderHandler создает обработчик контрактов коллабораторов
func NewProviderHandler(gradingService *grading.Service, evaluations repository.EvaluationRepository, maxLimit int) *ProviderHandler {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &ProviderHandler{grading: gradingService, evaluations: evaluations, maxLimit: maxLimit}
}

// GetEvaluation возвращает оценку с вопросами без правильных ответов
// GET /api/evaluations/:id
func (h *ProviderHandler) GetEvaluation(c *gin.Context) {
	evaluation, err := h.grading.FetchEvaluation(c.Request.Context(), c.MustGet("evaluationID").(uint))
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

// CreateEvaluation создает оценку с вопросами
// POST /api/evaluations
func (h *ProviderHandler) CreateEvaluation(c *gin.Context) {
	var req dto.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}
	evaluation, err := req.ToEntity()
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	if err := h.evaluations.Create(evaluation); err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusCreated, evaluation)
}

// ListEvaluations возвращает каталог оценок
// GET /api/evaluations
func (h *ProviderHandler) ListEvaluations(c *gin.Context) {
	limit := queryInt(c, "limit", 20, h.maxLimit)
	offset := queryInt(c, "offset", 0, 1<<30)

	evaluations, err := h.evaluations.List(limit, offset)
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewEvaluationSummaries(evaluations))
}

// SubmitAttempt оценивает ответы. Заголовок X-Session-ID делает запрос идемпотентным.
// POST /api/evaluations/:id/attempts
func (h *ProviderHandler) SubmitAttempt(c *gin.Context) {
	var req dto.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation"})
		return
	}

	attempt, err := h.grading.SubmitRawAttempt(
		c.Request.Context(),
		c.GetHeader(collab.SessionHeader),
		c.MustGet("evaluationID").(uint),
		req.EmployeID,
		req.Answers,
		req.ElapsedSeconds,
	)
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// GetAttemptDetail возвращает разбор попытки
// GET /api/attempts/:id
func (h *ProviderHandler) GetAttemptDetail(c *gin.Context) {
	detail, err := h.grading.FetchAttemptDetail(c.Request.Context(), c.MustGet("attemptID").(uint))
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListAttempts возвращает попытки учащегося, новые первыми
// GET /api/employes/:id/attempts?limit=
func (h *ProviderHandler) ListAttempts(c *gin.Context) {
	limit := queryInt(c, "limit", h.maxLimit, h.maxLimit)
	attempts, err := h.grading.ListAttempts(c.Request.Context(), c.MustGet("employeID").(uint), limit)
	if err != nil {
		handleError(c, providerComponent, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

// queryInt читает неотрицательный параметр запроса, ограниченный max
func queryInt(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
