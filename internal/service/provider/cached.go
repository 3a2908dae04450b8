package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// DefaultEvaluationTTL - время жизни оценки в кеше по умолчанию
const DefaultEvaluationTTL = 10 * time.Minute

// EvaluationCacheKey возвращает ключ кеша для оценки
func EvaluationCacheKey(evaluationID uint) string {
	return fmt.Sprintf("evaluation:%d", evaluationID)
}

// CachedEvaluationProvider читает оценки через кеш Redis.
// Ошибки кеша не мешают загрузке: оценка берется у исходного провайдера.
type CachedEvaluationProvider struct {
	next  repository.EvaluationProvider
	cache repository.CacheRepository
	ttl   time.Duration
}

// NewCachedEvaluationProvider создает провайдер с кешем
func NewCachedEvaluationProvider(next repository.EvaluationProvider, cache repository.CacheRepository, ttl time.Duration) *CachedEvaluationProvider {
	if ttl <= 0 {
		ttl = DefaultEvaluationTTL
	}
	return &CachedEvaluationProvider{next: next, cache: cache, ttl: ttl}
}

// FetchEvaluation возвращает оценку из кеша или от исходного провайдера
func (p *CachedEvaluationProvider) FetchEvaluation(ctx context.Context, evaluationID uint) (*entity.Evaluation, error) {
	key := EvaluationCacheKey(evaluationID)

	var cached cachedEvaluation
	err := p.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached.toEntity(), nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[EvaluationCache] Ошибка чтения кеша для оценки #%d: %v", evaluationID, err)
	}

	evaluation, err := p.next.FetchEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetJSON(ctx, key, newCachedEvaluation(evaluation), p.ttl); err != nil {
		log.Printf("[EvaluationCache] Не удалось сохранить оценку #%d в кеш: %v", evaluationID, err)
	}
	return evaluation, nil
}

// cachedEvaluation хранит вопросы вместе с правильными ответами,
// которые скрыты в JSON-представлении сущности
type cachedEvaluation struct {
	ID              uint             `json:"id"`
	Title           string           `json:"titre"`
	Description     string           `json:"description"`
	DurationMinutes int              `json:"duree_minutes"`
	Questions       []cachedQuestion `json:"questions"`
}

type cachedQuestion struct {
	ID             uint                `json:"id"`
	Position       int                 `json:"position"`
	Text           string              `json:"question"`
	Type           entity.QuestionType `json:"type"`
	Options        []string            `json:"options"`
	CorrectAnswers []string            `json:"correct_answers"`
	Points         int                 `json:"points"`
}

func newCachedEvaluation(e *entity.Evaluation) cachedEvaluation {
	out := cachedEvaluation{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		Questions:       make([]cachedQuestion, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		out.Questions = append(out.Questions, cachedQuestion{
			ID:             q.ID,
			Position:       q.Position,
			Text:           q.Text,
			Type:           q.Type,
			Options:        q.Options,
			CorrectAnswers: q.CorrectAnswers,
			Points:         q.Points,
		})
	}
	return out
}

func (c cachedEvaluation) toEntity() *entity.Evaluation {
	e := &entity.Evaluation{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		DurationMinutes: c.DurationMinutes,
		Questions:       make([]entity.Question, 0, len(c.Questions)),
	}
	for _, q := range c.Questions {
		e.Questions = append(e.Questions, entity.Question{
			ID:             q.ID,
			EvaluationID:   c.ID,
			Position:       q.Position,
			Text:           q.Text,
			Type:           q.Type,
			Options:        entity.StringArray(q.Options),
			CorrectAnswers: entity.StringArray(q.CorrectAnswers),
			Points:         q.Points,
		})
	}
	return e
}
