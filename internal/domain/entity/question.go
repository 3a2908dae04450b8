package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	// Обработка NULL значений из базы данных
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// QuestionType определяет форму ответа на вопрос
type QuestionType string

// Типы вопросов (значения совпадают с контрактом провайдера оценок)
const (
	QuestionTypeSingleChoice QuestionType = "choix_unique"
	QuestionTypeMultiChoice  QuestionType = "choix_multiple"
	QuestionTypeFreeText     QuestionType = "texte_libre"
)

// IsValid проверяет, поддерживается ли тип вопроса
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeFreeText:
		return true
	}
	return false
}

// HasOptions возвращает true для типов с вариантами ответа
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question представляет вопрос оценки
type Question struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	EvaluationID   uint         `gorm:"not null;index" json:"-"`
	Position       int          `gorm:"not null;default:0" json:"-"`
	Text           string       `gorm:"size:1000;not null" json:"question"`
	Type           QuestionType `gorm:"size:20;not null" json:"type"`
	Options        StringArray  `gorm:"type:jsonb;not null" json:"options"`
	CorrectAnswers StringArray  `gorm:"type:jsonb;not null" json:"-"` // Скрыто от клиента
	Points         int          `gorm:"not null" json:"points"`
	CreatedAt      time.Time    `json:"-"`
	UpdatedAt      time.Time    `json:"-"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// HasOption проверяет, что вариант входит в список вариантов вопроса
func (q *Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if o == label {
			return true
		}
	}
	return false
}

// ExpectedAnswer строит эталонный ответ из правильных вариантов.
// Для свободного текста эталона нет.
func (q *Question) ExpectedAnswer() (AnswerValue, bool) {
	switch q.Type {
	case QuestionTypeSingleChoice:
		if len(q.CorrectAnswers) == 0 {
			return NoChoice(), true
		}
		return SingleChoice(q.CorrectAnswers[0]), true
	case QuestionTypeMultiChoice:
		return MultiChoice(q.CorrectAnswers...), true
	case QuestionTypeFreeText:
		return AnswerValue{}, false
	}
	return AnswerValue{}, false
}
