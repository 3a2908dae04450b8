package dto

import (
	"encoding/json"
	"fmt"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
	"github.com/yourusername/evaluation-api/internal/service/session"
)

// SessionResponse - снимок сессии и тикет для подписки на ее события
type SessionResponse struct {
	Session  session.Snapshot `json:"session"`
	WSTicket string           `json:"ws_ticket,omitempty"`
}

// AnswerRequest изменяет ответ. Без question_id изменяется текущий вопрос.
// Для вопросов с вариантами передается option, для свободного ответа - text.
type AnswerRequest struct {
	QuestionID *uint   `json:"question_id"`
	Option     string  `json:"option"`
	Text       *string `json:"text"`
}

// ToEdit переводит запрос в команду сессии
func (r AnswerRequest) ToEdit() session.Edit {
	return session.Edit{QuestionID: r.QuestionID, Option: r.Option, Text: r.Text}
}

// GoToRequest переход к вопросу по индексу (с нуля)
type GoToRequest struct {
	Index *int `json:"index" binding:"required"`
}

// NavigateRequest - навигация через WebSocket
type NavigateRequest struct {
	Direction string `json:"direction"` // next | previous | goto
	Index     int    `json:"index"`
}

// SubmitAttemptRequest - тело запроса сервиса оценивания
type SubmitAttemptRequest struct {
	EmployeID      uint                       `json:"employe_id" binding:"required"`
	Answers        map[string]json.RawMessage `json:"reponses"`
	ElapsedSeconds int                        `json:"temps_utilise"`
}

// CreateQuestionRequest - вопрос новой оценки
type CreateQuestionRequest struct {
	Text           string   `json:"question" binding:"required"`
	Type           string   `json:"type" binding:"required"`
	Options        []string `json:"options"`
	CorrectAnswers []string `json:"correct_answers"`
	Points         int      `json:"points" binding:"required,min=1"`
}

// CreateEvaluationRequest - новая оценка
type CreateEvaluationRequest struct {
	Title           string                  `json:"titre" binding:"required"`
	Description     string                  `json:"description"`
	DurationMinutes int                     `json:"duree_minutes" binding:"required,min=1"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// ToEntity проверяет согласованность вопросов и собирает оценку
func (r CreateEvaluationRequest) ToEntity() (*entity.Evaluation, error) {
	evaluation := &entity.Evaluation{
		Title:           r.Title,
		Description:     r.Description,
		DurationMinutes: r.DurationMinutes,
	}

	for i, q := range r.Questions {
		qt := entity.QuestionType(q.Type)
		if !qt.IsValid() {
			return nil, fmt.Errorf("%w: question %d has unsupported type %q", apperrors.ErrValidation, i+1, q.Type)
		}

		if qt.HasOptions() {
			if len(q.Options) < 2 {
				return nil, fmt.Errorf("%w: question %d needs at least two options", apperrors.ErrValidation, i+1)
			}
			offered := make(map[string]struct{}, len(q.Options))
			for _, o := range q.Options {
				if _, dup := offered[o]; dup || o == "" {
					return nil, fmt.Errorf("%w: question %d has empty or duplicate option %q", apperrors.ErrValidation, i+1, o)
				}
				offered[o] = struct{}{}
			}
			for _, a := range q.CorrectAnswers {
				if _, ok := offered[a]; !ok {
					return nil, fmt.Errorf("%w: question %d correct answer %q is not an option", apperrors.ErrValidation, i+1, a)
				}
			}
			if qt == entity.QuestionTypeSingleChoice && len(q.CorrectAnswers) != 1 {
				return nil, fmt.Errorf("%w: question %d must have exactly one correct answer", apperrors.ErrValidation, i+1)
			}
			if qt == entity.QuestionTypeMultiChoice && len(q.CorrectAnswers) == 0 {
				return nil, fmt.Errorf("%w: question %d must have correct answers", apperrors.ErrValidation, i+1)
			}
		} else if len(q.Options) > 0 {
			return nil, fmt.Errorf("%w: free text question %d cannot have options", apperrors.ErrValidation, i+1)
		}

		evaluation.Questions = append(evaluation.Questions, entity.Question{
			Text:           q.Text,
			Type:           qt,
			Options:        entity.StringArray(q.Options),
			CorrectAnswers: entity.StringArray(q.CorrectAnswers),
			Points:         q.Points,
		})
	}
	return evaluation, nil
}

// EvaluationSummary - оценка в списке
type EvaluationSummary struct {
	ID              uint   `json:"id"`
	Title           string `json:"titre"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duree_minutes"`
}

// NewEvaluationSummaries собирает список оценок
func NewEvaluationSummaries(evaluations []entity.Evaluation) []EvaluationSummary {
	out := make([]EvaluationSummary, 0, len(evaluations))
	for _, e := range evaluations {
		out = append(out, EvaluationSummary{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			DurationMinutes: e.DurationMinutes,
		})
	}
	return out
}
