package entity

import (
	"encoding/json"
	"fmt"
)

// AttemptDetail - попытка с разбором по вопросам, как ее возвращает сервис оценивания
type AttemptDetail struct {
	Attempt   Attempt           `json:"attempt"`
	Questions []AttemptQuestion `json:"questions"`
	Summary   AttemptSummary    `json:"summary"`
}

// AttemptQuestion - вопрос попытки с ответом учащегося и правильными вариантами
type AttemptQuestion struct {
	ID             uint         `json:"id"`
	Question       string       `json:"question"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options"`
	Points         int          `json:"points"`
	UserAnswer     *AnswerValue `json:"user_answer"`
	CorrectAnswers []string     `json:"correct_answers"`
	IsCorrect      bool         `json:"is_correct"`
}

// AttemptSummary - итоги попытки
type AttemptSummary struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	Percentage     float64 `json:"pourcentage"`
	ElapsedSeconds int     `json:"temps_utilise"`
}

// UnmarshalJSON разбирает user_answer по типу вопроса
func (q *AttemptQuestion) UnmarshalJSON(data []byte) error {
	type plain AttemptQuestion
	var aux struct {
		plain
		UserAnswer json.RawMessage `json:"user_answer"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*q = AttemptQuestion(aux.plain)
	q.UserAnswer = nil

	if len(aux.UserAnswer) == 0 || string(aux.UserAnswer) == "null" {
		return nil
	}
	answer, err := DecodeAnswer(q.Type, aux.UserAnswer)
	if err != nil {
		return fmt.Errorf("question %d user_answer: %w", q.ID, err)
	}
	q.UserAnswer = &answer
	return nil
}
