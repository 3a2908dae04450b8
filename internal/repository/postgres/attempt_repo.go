package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// AttemptRepo реализует repository.AttemptRepository
type AttemptRepo struct {
	db *gorm.DB
}

// NewAttemptRepo создает новый репозиторий попыток
func NewAttemptRepo(db *gorm.DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Create сохраняет попытку. Уникальный индекс по session_id защищает от повторной записи.
func (r *AttemptRepo) Create(attempt *entity.Attempt) error {
	if err := r.db.Create(attempt).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attempt for session already exists", apperrors.ErrConflict)
		}
		return err
	}
	return nil
}

// GetByID возвращает попытку по ID
func (r *AttemptRepo) GetByID(id uint) (*entity.Attempt, error) {
	var attempt entity.Attempt
	err := r.db.First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// GetBySessionID возвращает попытку, созданную для сессии
func (r *AttemptRepo) GetBySessionID(sessionID string) (*entity.Attempt, error) {
	var attempt entity.Attempt
	err := r.db.Where("session_id = ?", sessionID).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// ListByEmploye возвращает последние попытки учащегося
func (r *AttemptRepo) ListByEmploye(employeID uint, limit int) ([]entity.Attempt, error) {
	var attempts []entity.Attempt
	query := r.db.Where("employe_id = ?", employeID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&attempts).Error
	return attempts, err
}
