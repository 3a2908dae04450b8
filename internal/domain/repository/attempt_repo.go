package repository

import (
	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// AttemptRepository определяет методы для работы с попытками
type AttemptRepository interface {
	// Create сохраняет попытку. Повтор для той же сессии возвращает ErrConflict.
	Create(attempt *entity.Attempt) error
	GetByID(id uint) (*entity.Attempt, error)
	GetBySessionID(sessionID string) (*entity.Attempt, error)
	// ListByEmploye возвращает последние попытки учащегося, новые первыми
	ListByEmploye(employeID uint, limit int) ([]entity.Attempt, error)
}
