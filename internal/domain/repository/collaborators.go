package repository

import (
	"context"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// EvaluationProvider отдает оценку с вопросами по идентификатору
type EvaluationProvider interface {
	FetchEvaluation(ctx context.Context, evaluationID uint) (*entity.Evaluation, error)
}

// GradingService оценивает отправленные ответы и отдает разбор попытки.
// sessionID позволяет сервису распознать повторную отправку той же сессии.
type GradingService interface {
	SubmitAttempt(ctx context.Context, sessionID string, evaluationID uint, submission entity.Submission) (*entity.Attempt, error)
	FetchAttemptDetail(ctx context.Context, attemptID uint) (*entity.AttemptDetail, error)
}

// HistoryProvider отдает последние попытки учащегося
type HistoryProvider interface {
	ListAttempts(ctx context.Context, employeID uint, limit int) ([]entity.Attempt, error)
}
