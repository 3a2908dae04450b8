package session

import (
	"fmt"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// Edit - действие учащегося над ответом.
// QuestionID nil означает текущий вопрос, иначе сессия переходит к указанному.
// Option используется для вопросов с вариантами, Text - для текстовых.
type Edit struct {
	QuestionID *uint   `json:"question_id,omitempty"`
	Option     string  `json:"option,omitempty"`
	Text       *string `json:"text,omitempty"`
}

// applyEdit изменяет набор ответов по правилам типа вопроса:
// один вариант заменяется, вариант из набора переключается, текст заменяется.
func applyEdit(answers entity.AnswerSet, q *entity.Question, edit Edit) error {
	switch q.Type {
	case entity.QuestionTypeSingleChoice:
		if err := requireOption(q, edit); err != nil {
			return err
		}
		answers[q.ID] = entity.SingleChoice(edit.Option)
		return nil

	case entity.QuestionTypeMultiChoice:
		if err := requireOption(q, edit); err != nil {
			return err
		}
		toggled := answers[q.ID].Toggle(edit.Option)
		if toggled.IsEmpty() {
			// Пустой набор равносилен отсутствию ответа
			delete(answers, q.ID)
			return nil
		}
		answers[q.ID] = toggled
		return nil

	case entity.QuestionTypeFreeText:
		if edit.Text == nil {
			return fmt.Errorf("%w: question %d expects text", apperrors.ErrAnswerTypeMismatch, q.ID)
		}
		answers[q.ID] = entity.FreeText(*edit.Text)
		return nil
	}
	return fmt.Errorf("%w: unsupported question type %q", apperrors.ErrValidation, q.Type)
}

func requireOption(q *entity.Question, edit Edit) error {
	if edit.Text != nil {
		return fmt.Errorf("%w: question %d expects an option", apperrors.ErrAnswerTypeMismatch, q.ID)
	}
	if !q.HasOption(edit.Option) {
		return fmt.Errorf("%w: option %q is not offered by question %d", apperrors.ErrValidation, edit.Option, q.ID)
	}
	return nil
}
