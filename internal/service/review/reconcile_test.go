package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// MockGradingService реализует repository.GradingService
type MockGradingService struct {
	mock.Mock
}

func (m *MockGradingService) SubmitAttempt(ctx context.Context, sessionID string, evaluationID uint, submission entity.Submission) (*entity.Attempt, error) {
	args := m.Called(ctx, sessionID, evaluationID, submission)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Attempt), args.Error(1)
}

func (m *MockGradingService) FetchAttemptDetail(ctx context.Context, attemptID uint) (*entity.AttemptDetail, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AttemptDetail), args.Error(1)
}

func answer(v entity.AnswerValue) *entity.AnswerValue { return &v }

func multiQuestion(recorded *entity.AnswerValue, correct ...string) entity.AttemptQuestion {
	return entity.AttemptQuestion{
		ID:             1,
		Type:           entity.QuestionTypeMultiChoice,
		Options:        []string{"A", "B", "C"},
		Points:         2,
		UserAnswer:     recorded,
		CorrectAnswers: correct,
	}
}

func TestReconcile_MultiChoiceSetEquality(t *testing.T) {
	tests := []struct {
		name     string
		recorded *entity.AnswerValue
		want     Verdict
	}{
		{"тот же набор", answer(entity.MultiChoice("A", "B")), VerdictCorrect},
		{"другой порядок", answer(entity.MultiChoice("B", "A")), VerdictCorrect},
		{"подмножество", answer(entity.MultiChoice("A")), VerdictIncorrect},
		{"лишний вариант", answer(entity.MultiChoice("A", "B", "C")), VerdictIncorrect},
		{"без ответа", nil, VerdictIncorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			detail := &entity.AttemptDetail{Questions: []entity.AttemptQuestion{multiQuestion(tt.recorded, "A", "B")}}

			// Act
			review := Reconcile(detail)

			// Assert
			require.Len(t, review.Questions, 1)
			assert.Equal(t, tt.want, review.Questions[0].Verdict)
			assert.Equal(t, tt.want == VerdictCorrect, review.Questions[0].IsCorrect)
		})
	}
}

func TestReconcile_SingleChoiceMarks(t *testing.T) {
	// Arrange
	detail := &entity.AttemptDetail{Questions: []entity.AttemptQuestion{{
		ID:             1,
		Type:           entity.QuestionTypeSingleChoice,
		Options:        []string{"A", "B", "C"},
		UserAnswer:     answer(entity.SingleChoice("A")),
		CorrectAnswers: []string{"B"},
	}}}

	// Act
	review := Reconcile(detail)

	// Assert
	q := review.Questions[0]
	assert.Equal(t, VerdictIncorrect, q.Verdict)
	require.Len(t, q.Options, 3)
	assert.Equal(t, MarkLearner, q.Options[0].Mark)
	assert.Equal(t, MarkCorrect, q.Options[1].Mark)
	assert.Equal(t, MarkNone, q.Options[2].Mark)

	detail.Questions[0].UserAnswer = answer(entity.SingleChoice("B"))
	q = Reconcile(detail).Questions[0]
	assert.Equal(t, VerdictCorrect, q.Verdict)
	assert.Equal(t, MarkBoth, q.Options[1].Mark)
}

func TestReconcile_MultiChoiceMarks(t *testing.T) {
	detail := &entity.AttemptDetail{Questions: []entity.AttemptQuestion{
		multiQuestion(answer(entity.MultiChoice("A", "C")), "A", "B"),
	}}

	q := Reconcile(detail).Questions[0]

	marks := make([]OptionMark, 0, len(q.Options))
	for _, o := range q.Options {
		marks = append(marks, o.Mark)
	}
	assert.Equal(t, []OptionMark{MarkBoth, MarkCorrect, MarkLearner}, marks)
}

func TestReconcile_FreeTextNeverCorrect(t *testing.T) {
	// Arrange: текст совпадает с ожидаемым, но вердикт все равно ручной
	detail := &entity.AttemptDetail{Questions: []entity.AttemptQuestion{
		{ID: 1, Type: entity.QuestionTypeFreeText, UserAnswer: answer(entity.FreeText("TCP")), CorrectAnswers: []string{"TCP"}, IsCorrect: true},
		{ID: 2, Type: entity.QuestionTypeFreeText, UserAnswer: answer(entity.FreeText(""))},
		{ID: 3, Type: entity.QuestionTypeFreeText},
	}}

	// Act
	review := Reconcile(detail)

	// Assert
	for _, q := range review.Questions {
		assert.False(t, q.IsCorrect, "Текстовый ответ не оценивается автоматически")
		assert.True(t, q.NeedsManualReview)
		assert.Equal(t, VerdictManualReview, q.Verdict)
	}
	assert.Equal(t, "TCP", review.Questions[0].Text)
	assert.Equal(t, NoAnswerMarker, review.Questions[1].Text)
	assert.Equal(t, NoAnswerMarker, review.Questions[2].Text)
	assert.Equal(t, 0, review.CorrectCount)
	assert.Equal(t, 3, review.ManualCount)
}

func TestReconciler_Review(t *testing.T) {
	ctx := context.Background()
	learner := entity.Learner{ID: 5}

	t.Run("не найдено", func(t *testing.T) {
		grading := new(MockGradingService)
		grading.On("FetchAttemptDetail", ctx, uint(1)).Return(nil, apperrors.ErrNotFound)

		_, err := NewReconciler(grading).Review(ctx, 1, learner)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NotErrorIs(t, err, apperrors.ErrUnavailable)
	})

	t.Run("сбой сервиса отличается от отсутствия", func(t *testing.T) {
		grading := new(MockGradingService)
		grading.On("FetchAttemptDetail", ctx, uint(1)).Return(nil, errors.New("connection reset"))

		_, err := NewReconciler(grading).Review(ctx, 1, learner)

		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("чужая попытка", func(t *testing.T) {
		grading := new(MockGradingService)
		grading.On("FetchAttemptDetail", ctx, uint(1)).Return(&entity.AttemptDetail{Attempt: entity.Attempt{ID: 1, EmployeID: 9}}, nil)

		_, err := NewReconciler(grading).Review(ctx, 1, learner)

		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("успех", func(t *testing.T) {
		grading := new(MockGradingService)
		grading.On("FetchAttemptDetail", ctx, uint(1)).Return(&entity.AttemptDetail{
			Attempt:   entity.Attempt{ID: 1, EmployeID: 5},
			Questions: []entity.AttemptQuestion{multiQuestion(answer(entity.MultiChoice("A", "B")), "A", "B")},
		}, nil)

		review, err := NewReconciler(grading).Review(ctx, 1, learner)

		require.NoError(t, err)
		assert.Equal(t, 1, review.CorrectCount)
	})
}
