package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_HasOption(t *testing.T) {
	// Arrange
	question := &Question{
		Type:    QuestionTypeSingleChoice,
		Options: StringArray{"A", "B", "C"},
	}

	// Act & Assert
	assert.True(t, question.HasOption("A"), "Вариант A должен входить в список")
	assert.True(t, question.HasOption("C"), "Вариант C должен входить в список")
	assert.False(t, question.HasOption("D"), "Вариант D не должен входить в список")
	assert.False(t, question.HasOption(""), "Пустая строка не является вариантом")
}

func TestQuestion_ExpectedAnswer(t *testing.T) {
	single := &Question{Type: QuestionTypeSingleChoice, CorrectAnswers: StringArray{"B"}}
	multi := &Question{Type: QuestionTypeMultiChoice, CorrectAnswers: StringArray{"A", "C", "A"}}
	text := &Question{Type: QuestionTypeFreeText}

	expected, ok := single.ExpectedAnswer()
	require.True(t, ok)
	assert.True(t, expected.Equal(SingleChoice("B")))

	expected, ok = multi.ExpectedAnswer()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C"}, expected.Options(), "Повторы в правильных ответах должны схлопываться")

	_, ok = text.ExpectedAnswer()
	assert.False(t, ok, "У текстового вопроса нет эталонного ответа")
}

func TestQuestionType_IsValid(t *testing.T) {
	assert.True(t, QuestionTypeSingleChoice.IsValid())
	assert.True(t, QuestionTypeMultiChoice.IsValid())
	assert.True(t, QuestionTypeFreeText.IsValid())
	assert.False(t, QuestionType("vrai_faux").IsValid())
}

func TestStringArray_ScanValue(t *testing.T) {
	// Arrange
	var arr StringArray

	// Act
	err := arr.Scan([]byte(`["A","B"]`))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StringArray{"A", "B"}, arr)

	require.NoError(t, arr.Scan(nil))
	assert.Empty(t, arr, "NULL должен давать пустой массив")

	value, err := StringArray{}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value, "Пустой массив сохраняется как [] вместо null")

	assert.Error(t, arr.Scan(42), "Неподдерживаемый тип должен вернуть ошибку")
}

func TestEvaluation_DurationAndPoints(t *testing.T) {
	eval := &Evaluation{
		DurationMinutes: 2,
		Questions: []Question{
			{ID: 1, Points: 2},
			{ID: 2, Points: 3},
		},
	}

	assert.Equal(t, 120, eval.DurationSeconds())
	assert.Equal(t, 5, eval.TotalPoints())

	q, ok := eval.QuestionByID(2)
	require.True(t, ok)
	assert.Equal(t, 3, q.Points)

	_, ok = eval.QuestionByID(99)
	assert.False(t, ok)

	idx, ok := eval.QuestionIndex(2)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = eval.QuestionIndex(99)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestEvaluation_JSONContract(t *testing.T) {
	// Arrange
	eval := Evaluation{
		ID:              7,
		Title:           "Sécurité",
		DurationMinutes: 15,
		Questions: []Question{{
			ID:             1,
			Text:           "Quel port ?",
			Type:           QuestionTypeSingleChoice,
			Options:        StringArray{"22", "80"},
			CorrectAnswers: StringArray{"22"},
			Points:         1,
		}},
	}

	// Act
	data, err := json.Marshal(eval)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Assert
	assert.Equal(t, "Sécurité", decoded["titre"])
	assert.EqualValues(t, 15, decoded["duree_minutes"])
	questions := decoded["questions"].([]interface{})
	require.Len(t, questions, 1)
	first := questions[0].(map[string]interface{})
	assert.Equal(t, "Quel port ?", first["question"])
	assert.Equal(t, "choix_unique", first["type"])
	assert.NotContains(t, first, "correct_answers", "Правильные ответы не должны уходить клиенту")
}
