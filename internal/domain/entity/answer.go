package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// AnswerValue - ответ на один вопрос. Форма ответа определяется типом вопроса:
// один вариант (или отсутствие выбора), набор вариантов или произвольный текст.
type AnswerValue struct {
	kind     QuestionType
	choice   string
	selected bool
	options  []string
	text     string
}

// SingleChoice создает ответ с одним выбранным вариантом
func SingleChoice(label string) AnswerValue {
	return AnswerValue{kind: QuestionTypeSingleChoice, choice: label, selected: true}
}

// NoChoice создает ответ на вопрос с одним вариантом без выбора
func NoChoice() AnswerValue {
	return AnswerValue{kind: QuestionTypeSingleChoice}
}

// MultiChoice создает ответ с набором вариантов. Повторы отбрасываются,
// порядок первого появления сохраняется.
func MultiChoice(labels ...string) AnswerValue {
	return AnswerValue{kind: QuestionTypeMultiChoice, options: uniqueLabels(labels)}
}

// FreeText создает текстовый ответ. Текст хранится как есть.
func FreeText(text string) AnswerValue {
	return AnswerValue{kind: QuestionTypeFreeText, text: text}
}

// Kind возвращает тип вопроса, к которому относится ответ
func (a AnswerValue) Kind() QuestionType {
	return a.kind
}

// Choice возвращает выбранный вариант для вопроса с одним ответом
func (a AnswerValue) Choice() (string, bool) {
	return a.choice, a.selected
}

// Options возвращает копию выбранных вариантов
func (a AnswerValue) Options() []string {
	out := make([]string, len(a.options))
	copy(out, a.options)
	return out
}

// Text возвращает текстовый ответ
func (a AnswerValue) Text() string {
	return a.text
}

// Contains проверяет, что вариант входит в ответ
func (a AnswerValue) Contains(label string) bool {
	switch a.kind {
	case QuestionTypeSingleChoice:
		return a.selected && a.choice == label
	case QuestionTypeMultiChoice:
		for _, o := range a.options {
			if o == label {
				return true
			}
		}
	case QuestionTypeFreeText:
		return false
	}
	return false
}

// IsEmpty возвращает true, если ответ не содержит выбора или текста
func (a AnswerValue) IsEmpty() bool {
	switch a.kind {
	case QuestionTypeSingleChoice:
		return !a.selected
	case QuestionTypeMultiChoice:
		return len(a.options) == 0
	case QuestionTypeFreeText:
		return a.text == ""
	}
	return true
}

// Toggle добавляет вариант в набор, если его нет, и убирает, если он есть.
// Применяется только к вопросам с несколькими вариантами.
func (a AnswerValue) Toggle(label string) AnswerValue {
	if a.Contains(label) {
		rest := make([]string, 0, len(a.options))
		for _, o := range a.options {
			if o != label {
				rest = append(rest, o)
			}
		}
		return AnswerValue{kind: QuestionTypeMultiChoice, options: rest}
	}
	next := make([]string, 0, len(a.options)+1)
	next = append(next, a.options...)
	next = append(next, label)
	return AnswerValue{kind: QuestionTypeMultiChoice, options: next}
}

// Equal сравнивает ответы по правилам типа: для набора вариантов порядок не важен
func (a AnswerValue) Equal(b AnswerValue) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case QuestionTypeSingleChoice:
		return a.selected == b.selected && a.choice == b.choice
	case QuestionTypeMultiChoice:
		return sameSet(a.options, b.options)
	case QuestionTypeFreeText:
		return a.text == b.text
	}
	return false
}

// Normalize возвращает ответ в каноническом виде перед отправкой:
// повторы в наборе вариантов схлопываются.
func (a AnswerValue) Normalize() AnswerValue {
	if a.kind == QuestionTypeMultiChoice {
		return AnswerValue{kind: QuestionTypeMultiChoice, options: uniqueLabels(a.options)}
	}
	return a
}

// MarshalJSON сериализует ответ в форму, принятую сервисом оценивания:
// строка, массив строк или null.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case QuestionTypeSingleChoice:
		if !a.selected {
			return []byte("null"), nil
		}
		return json.Marshal(a.choice)
	case QuestionTypeMultiChoice:
		if len(a.options) == 0 {
			return []byte("[]"), nil
		}
		return json.Marshal(a.options)
	case QuestionTypeFreeText:
		return json.Marshal(a.text)
	}
	return []byte("null"), nil
}

// DecodeAnswer разбирает ответ из JSON согласно типу вопроса
func DecodeAnswer(kind QuestionType, raw json.RawMessage) (AnswerValue, error) {
	trimmed := bytes.TrimSpace(raw)
	isNull := len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))

	switch kind {
	case QuestionTypeSingleChoice:
		if isNull {
			return NoChoice(), nil
		}
		var label string
		if err := json.Unmarshal(trimmed, &label); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: single choice answer must be a string", apperrors.ErrAnswerTypeMismatch)
		}
		return SingleChoice(label), nil
	case QuestionTypeMultiChoice:
		if isNull {
			return MultiChoice(), nil
		}
		var labels []string
		if err := json.Unmarshal(trimmed, &labels); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: multi choice answer must be an array of strings", apperrors.ErrAnswerTypeMismatch)
		}
		return MultiChoice(labels...), nil
	case QuestionTypeFreeText:
		if isNull {
			return FreeText(""), nil
		}
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: free text answer must be a string", apperrors.ErrAnswerTypeMismatch)
		}
		return FreeText(text), nil
	}
	return AnswerValue{}, fmt.Errorf("%w: unsupported question type %q", apperrors.ErrValidation, kind)
}

// AnswerSet - ответы сессии по идентификатору вопроса.
// Запись появляется только после первого действия с вопросом.
type AnswerSet map[uint]AnswerValue

// Clone возвращает независимую копию набора
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for id, v := range s {
		out[id] = v.Normalize()
	}
	return out
}

// Normalized возвращает копию с ответами в каноническом виде
func (s AnswerSet) Normalized() AnswerSet {
	return s.Clone()
}

// MarshalJSON сериализует набор как объект с ключами-строками в порядке возрастания id
func (s AnswerSet) MarshalJSON() ([]byte, error) {
	ids := make([]uint, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.FormatUint(uint64(id), 10)))
		buf.WriteByte(':')
		data, err := s[id].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeAnswerSet разбирает ответы из JSON, используя типы вопросов оценки.
// Ключ, не соответствующий ни одному вопросу, является ошибкой.
func DecodeAnswerSet(questions []Question, raw map[string]json.RawMessage) (AnswerSet, error) {
	byID := make(map[uint]*Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	out := make(AnswerSet, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid question id %q", apperrors.ErrValidation, key)
		}
		q, ok := byID[uint(id)]
		if !ok {
			return nil, fmt.Errorf("%w: question %d", apperrors.ErrUnknownQuestion, id)
		}
		answer, err := DecodeAnswer(q.Type, value)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", id, err)
		}
		out[q.ID] = answer
	}
	return out, nil
}

// RawAnswers хранит ответы попытки в JSONB в том виде, в каком они пришли
type RawAnswers map[string]json.RawMessage

// Scan реализует интерфейс sql.Scanner для RawAnswers
func (r *RawAnswers) Scan(value interface{}) error {
	if value == nil {
		*r = RawAnswers{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(data) == 0 {
		*r = RawAnswers{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// Value реализует интерфейс driver.Valuer для RawAnswers
func (r RawAnswers) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func sameSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, l := range a {
		left[l] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, l := range b {
		right[l] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for l := range left {
		if _, ok := right[l]; !ok {
			return false
		}
	}
	return true
}
