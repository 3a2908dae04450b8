package grading

import (
	"fmt"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// Result - итог подсчета баллов по набору ответов
type Result struct {
	Score          int
	TotalPoints    int
	CorrectAnswers int
	PerQuestion    map[uint]bool
}

// Score считает баллы: один вариант - точное совпадение, набор - равенство множеств,
// текст не оценивается автоматически и дает 0. Вопрос без ответа неверен.
// Баллы каждого вопроса должны быть положительными, иначе 0 <= score <= total не гарантируется.
func Score(evaluation *entity.Evaluation, answers entity.AnswerSet) (Result, error) {
	res := Result{PerQuestion: make(map[uint]bool, len(evaluation.Questions))}

	for _, q := range evaluation.Questions {
		if q.Points <= 0 {
			return Result{}, fmt.Errorf("%w: question %d of evaluation #%d has non-positive points %d", apperrors.ErrValidation, q.ID, evaluation.ID, q.Points)
		}
	}

	for id, answer := range answers {
		q, ok := evaluation.QuestionByID(id)
		if !ok {
			return Result{}, fmt.Errorf("%w: question %d is not part of evaluation #%d", apperrors.ErrUnknownQuestion, id, evaluation.ID)
		}
		if answer.Kind() != q.Type {
			return Result{}, fmt.Errorf("%w: question %d", apperrors.ErrAnswerTypeMismatch, id)
		}
	}

	for i := range evaluation.Questions {
		q := &evaluation.Questions[i]
		res.TotalPoints += q.Points

		answer, answered := answers[q.ID]
		correct := answered && isCorrect(q, answer)
		res.PerQuestion[q.ID] = correct
		if correct {
			res.Score += q.Points
			res.CorrectAnswers++
		}
	}
	return res, nil
}

func isCorrect(q *entity.Question, answer entity.AnswerValue) bool {
	switch q.Type {
	case entity.QuestionTypeSingleChoice, entity.QuestionTypeMultiChoice:
		if answer.IsEmpty() {
			return false
		}
		expected, ok := q.ExpectedAnswer()
		return ok && answer.Equal(expected)
	case entity.QuestionTypeFreeText:
		return false
	}
	return false
}
