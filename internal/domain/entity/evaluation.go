package entity

import (
	"time"
)

// Evaluation представляет оценку знаний: упорядоченный набор вопросов с ограничением по времени
type Evaluation struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:200;not null" json:"titre"`
	Description     string     `gorm:"size:2000;not null;default:''" json:"description"`
	DurationMinutes int        `gorm:"not null" json:"duree_minutes"`
	Questions       []Question `gorm:"foreignKey:EvaluationID" json:"questions"`
	CreatedAt       time.Time  `json:"-"`
	UpdatedAt       time.Time  `json:"-"`
}

// TableName определяет имя таблицы для GORM
func (Evaluation) TableName() string {
	return "evaluations"
}

// DurationSeconds возвращает бюджет времени в секундах
func (e *Evaluation) DurationSeconds() int {
	if e.DurationMinutes <= 0 {
		return 0
	}
	return e.DurationMinutes * 60
}

// QuestionCount возвращает количество вопросов
func (e *Evaluation) QuestionCount() int {
	return len(e.Questions)
}

// QuestionByID ищет вопрос по идентификатору
func (e *Evaluation) QuestionByID(id uint) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// QuestionIndex возвращает позицию вопроса в оценке
func (e *Evaluation) QuestionIndex(id uint) (int, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// TotalPoints возвращает сумму баллов всех вопросов
func (e *Evaluation) TotalPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}
