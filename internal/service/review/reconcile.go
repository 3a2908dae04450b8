package review

import (
	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// NoAnswerMarker показывается вместо пустого текстового ответа
const NoAnswerMarker = "no answer provided"

// Verdict - итог проверки вопроса
type Verdict string

const (
	VerdictCorrect      Verdict = "correct"
	VerdictIncorrect    Verdict = "incorrect"
	VerdictManualReview Verdict = "manual_review"
)

// OptionMark - отметка варианта в разборе
type OptionMark string

const (
	MarkLearner OptionMark = "learner" // выбран учащимся, но неверен
	MarkCorrect OptionMark = "correct" // верный, но не выбран
	MarkBoth    OptionMark = "both"
	MarkNone    OptionMark = "none"
)

// OptionView - вариант ответа с отметками
type OptionView struct {
	Label    string     `json:"label"`
	Selected bool       `json:"selected"`
	Correct  bool       `json:"correct"`
	Mark     OptionMark `json:"mark"`
}

// QuestionReview - разбор одного вопроса
type QuestionReview struct {
	ID                uint                `json:"id"`
	Question          string              `json:"question"`
	Type              entity.QuestionType `json:"type"`
	Points            int                 `json:"points"`
	Verdict           Verdict             `json:"verdict"`
	IsCorrect         bool                `json:"is_correct"`
	NeedsManualReview bool                `json:"needs_manual_review"`
	Options           []OptionView        `json:"options,omitempty"`
	Text              string              `json:"text,omitempty"`
	CorrectAnswers    []string            `json:"correct_answers"`
}

// Review - разбор попытки
type Review struct {
	Attempt      entity.Attempt        `json:"attempt"`
	Summary      entity.AttemptSummary `json:"summary"`
	Questions    []QuestionReview      `json:"questions"`
	CorrectCount int                   `json:"correct_count"`
	ManualCount  int                   `json:"manual_review_count"`
}

// Reconcile сопоставляет ответы учащегося с правильными и выносит вердикт по каждому вопросу.
// Признак is_correct из ответа сервиса не используется: вердикт вычисляется заново.
func Reconcile(detail *entity.AttemptDetail) *Review {
	out := &Review{
		Attempt:   detail.Attempt,
		Summary:   detail.Summary,
		Questions: make([]QuestionReview, 0, len(detail.Questions)),
	}

	for _, q := range detail.Questions {
		qr := reconcileQuestion(q)
		switch qr.Verdict {
		case VerdictCorrect:
			out.CorrectCount++
		case VerdictManualReview:
			out.ManualCount++
		case VerdictIncorrect:
		}
		out.Questions = append(out.Questions, qr)
	}
	return out
}

func reconcileQuestion(q entity.AttemptQuestion) QuestionReview {
	qr := QuestionReview{
		ID:             q.ID,
		Question:       q.Question,
		Type:           q.Type,
		Points:         q.Points,
		CorrectAnswers: append([]string{}, q.CorrectAnswers...),
	}

	switch q.Type {
	case entity.QuestionTypeSingleChoice:
		recorded := entity.NoChoice()
		if q.UserAnswer != nil {
			recorded = *q.UserAnswer
		}
		choice, selected := recorded.Choice()
		correct := selected && sameLabels([]string{choice}, q.CorrectAnswers)
		qr.setVerdict(correct)
		qr.Options = markOptions(q.Options, recorded, q.CorrectAnswers)

	case entity.QuestionTypeMultiChoice:
		recorded := entity.MultiChoice()
		if q.UserAnswer != nil {
			recorded = *q.UserAnswer
		}
		correct := q.UserAnswer != nil && !recorded.IsEmpty() && sameLabels(recorded.Options(), q.CorrectAnswers)
		qr.setVerdict(correct)
		qr.Options = markOptions(q.Options, recorded, q.CorrectAnswers)

	case entity.QuestionTypeFreeText:
		qr.Verdict = VerdictManualReview
		qr.NeedsManualReview = true
		qr.Text = NoAnswerMarker
		if q.UserAnswer != nil && q.UserAnswer.Text() != "" {
			qr.Text = q.UserAnswer.Text()
		}

	default:
		qr.Verdict = VerdictManualReview
		qr.NeedsManualReview = true
	}
	return qr
}

func (qr *QuestionReview) setVerdict(correct bool) {
	qr.IsCorrect = correct
	if correct {
		qr.Verdict = VerdictCorrect
		return
	}
	qr.Verdict = VerdictIncorrect
}

// markOptions отмечает варианты вопроса. Выбранные учащимся варианты,
// которых нет в списке, добавляются в конец.
func markOptions(options []string, recorded entity.AnswerValue, correct []string) []OptionView {
	correctSet := make(map[string]struct{}, len(correct))
	for _, c := range correct {
		correctSet[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(options))
	views := make([]OptionView, 0, len(options))
	for _, label := range options {
		seen[label] = struct{}{}
		views = append(views, optionView(label, recorded.Contains(label), hasLabel(correctSet, label)))
	}

	var extra []string
	switch recorded.Kind() {
	case entity.QuestionTypeSingleChoice:
		if choice, ok := recorded.Choice(); ok {
			extra = []string{choice}
		}
	case entity.QuestionTypeMultiChoice:
		extra = recorded.Options()
	case entity.QuestionTypeFreeText:
	}
	for _, label := range extra {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		views = append(views, optionView(label, true, hasLabel(correctSet, label)))
	}
	return views
}

func optionView(label string, selected, correct bool) OptionView {
	mark := MarkNone
	switch {
	case selected && correct:
		mark = MarkBoth
	case selected:
		mark = MarkLearner
	case correct:
		mark = MarkCorrect
	}
	return OptionView{Label: label, Selected: selected, Correct: correct, Mark: mark}
}

func hasLabel(set map[string]struct{}, label string) bool {
	_, ok := set[label]
	return ok
}

func sameLabels(a, b []string) bool {
	return entity.MultiChoice(a...).Equal(entity.MultiChoice(b...))
}
