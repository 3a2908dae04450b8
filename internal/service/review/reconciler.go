package review

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// Reconciler загружает разбор попытки у сервиса оценивания и сопоставляет ответы
type Reconciler struct {
	grading repository.GradingService
}

// NewReconciler создает сервис разбора попыток
func NewReconciler(grading repository.GradingService) *Reconciler {
	return &Reconciler{grading: grading}
}

// Review возвращает разбор попытки учащегося.
// Отсутствующая попытка дает ErrNotFound, сбой сервиса - ErrUnavailable.
func (r *Reconciler) Review(ctx context.Context, attemptID uint, learner entity.Learner) (*Review, error) {
	detail, err := r.grading.FetchAttemptDetail(ctx, attemptID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("attempt #%d: %w", attemptID, apperrors.ErrNotFound)
		}
		log.Printf("[ReviewReconciler] Ошибка загрузки разбора попытки #%d: %v", attemptID, err)
		return nil, fmt.Errorf("%w: attempt #%d detail: %v", apperrors.ErrUnavailable, attemptID, err)
	}
	if detail == nil {
		return nil, fmt.Errorf("%w: attempt #%d detail is empty", apperrors.ErrUnavailable, attemptID)
	}
	if detail.Attempt.EmployeID != 0 && detail.Attempt.EmployeID != learner.ID {
		return nil, fmt.Errorf("%w: attempt #%d belongs to another learner", apperrors.ErrForbidden, attemptID)
	}

	return Reconcile(detail), nil
}
