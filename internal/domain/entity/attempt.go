package entity

import (
	"math"
	"time"
)

// PassThreshold - минимальный процент для зачета попытки
const PassThreshold = 70.0

// Attempt представляет результат одной отправленной сессии
type Attempt struct {
	ID             uint       `gorm:"primaryKey" json:"attempt_id"`
	SessionID      *string    `gorm:"size:36;uniqueIndex" json:"-"`
	EvaluationID   uint       `gorm:"not null;index" json:"evaluation_id"`
	EmployeID      uint       `gorm:"not null;index:idx_attempt_employe" json:"employe_id"`
	Score          int        `gorm:"not null;default:0" json:"score"`
	TotalPoints    int        `gorm:"not null;default:0" json:"total_points"`
	Percentage     float64    `gorm:"not null;default:0" json:"pourcentage"`
	ElapsedSeconds int        `gorm:"not null;default:0" json:"temps_utilise"`
	Answers        RawAnswers `gorm:"type:jsonb;not null" json:"-"`
	CreatedAt      time.Time  `gorm:"index:idx_attempt_employe" json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Attempt) TableName() string {
	return "attempts"
}

// IsPassed проверяет, что процент не ниже порога
func (a *Attempt) IsPassed(threshold float64) bool {
	return a.Percentage >= threshold
}

// ComputePercentage считает процент правильных баллов с точностью до сотых.
// При нулевом максимуме возвращает 0.
func ComputePercentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := 100 * float64(score) / float64(total)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return math.Round(p*100) / 100
}

// Submission - тело запроса на оценивание попытки
type Submission struct {
	EmployeID      uint      `json:"employe_id"`
	Answers        AnswerSet `json:"reponses"`
	ElapsedSeconds int       `json:"temps_utilise"`
}

// Learner - учащийся из контекста идентификации
type Learner struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}
