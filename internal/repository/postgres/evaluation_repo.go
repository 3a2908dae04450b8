package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// EvaluationRepo реализует repository.EvaluationRepository
type EvaluationRepo struct {
	db *gorm.DB
}

// NewEvaluationRepo создает новый репозиторий оценок
func NewEvaluationRepo(db *gorm.DB) *EvaluationRepo {
	return &EvaluationRepo{db: db}
}

// Create создает оценку вместе с вопросами в одной транзакции
func (r *EvaluationRepo) Create(evaluation *entity.Evaluation) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range evaluation.Questions {
			if evaluation.Questions[i].Position == 0 {
				evaluation.Questions[i].Position = i + 1
			}
		}
		if err := tx.Create(evaluation).Error; err != nil {
			return fmt.Errorf("create evaluation: %w", err)
		}
		return nil
	})
}

// GetByID возвращает оценку по ID без вопросов
func (r *EvaluationRepo) GetByID(id uint) (*entity.Evaluation, error) {
	var evaluation entity.Evaluation
	err := r.db.First(&evaluation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &evaluation, nil
}

// GetWithQuestions возвращает оценку с вопросами в порядке их позиции
func (r *EvaluationRepo) GetWithQuestions(id uint) (*entity.Evaluation, error) {
	var evaluation entity.Evaluation
	err := r.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).First(&evaluation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &evaluation, nil
}

// List возвращает список оценок с пагинацией
func (r *EvaluationRepo) List(limit, offset int) ([]entity.Evaluation, error) {
	var evaluations []entity.Evaluation
	err := r.db.Limit(limit).Offset(offset).Order("id DESC").Find(&evaluations).Error
	return evaluations, err
}
