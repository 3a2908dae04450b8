package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/middleware"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// errorStatus переводит ошибку приложения в HTTP-статус и код ошибки
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrUnknownQuestion):
		return http.StatusUnprocessableEntity, "unknown_question"
	case errors.Is(err, apperrors.ErrAnswerTypeMismatch):
		return http.StatusUnprocessableEntity, "answer_type_mismatch"
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, apperrors.ErrExpiredToken):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrSessionNotActive):
		return http.StatusConflict, "session_not_active"
	case errors.Is(err, apperrors.ErrNotLastQuestion):
		return http.StatusConflict, "not_last_question"
	case errors.Is(err, apperrors.ErrSubmissionInFlight):
		return http.StatusConflict, "submission_in_flight"
	case errors.Is(err, apperrors.ErrAlreadyCompleted):
		return http.StatusConflict, "already_completed"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, apperrors.ErrUnavailable):
		return http.StatusBadGateway, "collaborator_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// handleError отправляет ответ с ошибкой. Внутренние ошибки не раскрываются клиенту.
func handleError(c *gin.Context, component string, err error) {
	status, errorType := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[%s] Внутренняя ошибка: %v", component, err)
		c.JSON(status, gin.H{"error": "Internal server error", "error_type": errorType})
		return
	}
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		log.Printf("[%s] Ошибка коллаборатора: %v", component, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "error_type": errorType})
}

// currentLearner возвращает учащегося, установленного AuthMiddleware
func currentLearner(c *gin.Context) (entity.Learner, bool) {
	rawID, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return entity.Learner{}, false
	}
	id, ok := rawID.(uint)
	if !ok || id == 0 {
		return entity.Learner{}, false
	}
	return entity.Learner{ID: id, Email: c.GetString(middleware.ContextEmail)}, true
}

// requireLearner как currentLearner, но сам отвечает 401
func requireLearner(c *gin.Context) (entity.Learner, bool) {
	learner, ok := currentLearner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
	}
	return learner, ok
}

// parseLearner восстанавливает учащегося по строковому ID WebSocket-клиента
func parseLearner(userID string) (entity.Learner, error) {
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil || id == 0 {
		return entity.Learner{}, fmt.Errorf("%w: invalid user id %q", apperrors.ErrUnauthorized, userID)
	}
	return entity.Learner{ID: uint(id)}, nil
}
