package repository

import (
	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// EvaluationRepository определяет методы для работы с оценками
type EvaluationRepository interface {
	Create(evaluation *entity.Evaluation) error
	GetByID(id uint) (*entity.Evaluation, error)
	// GetWithQuestions возвращает оценку с вопросами, упорядоченными по позиции
	GetWithQuestions(id uint) (*entity.Evaluation, error)
	List(limit, offset int) ([]entity.Evaluation, error)
}
