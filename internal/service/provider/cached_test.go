package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// ============================================================================
// Моки
// ============================================================================

// MockCacheRepo реализует repository.CacheRepository
type MockCacheRepo struct {
	mock.Mock
}

func (m *MockCacheRepo) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheRepo) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheRepo) GetJSON(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheRepo) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheRepo) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepo) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	args := m.Called(ctx, key, owner)
	return args.Bool(0), args.Error(1)
}

// MockEvaluationProvider реализует repository.EvaluationProvider
type MockEvaluationProvider struct {
	mock.Mock
}

func (m *MockEvaluationProvider) FetchEvaluation(ctx context.Context, evaluationID uint) (*entity.Evaluation, error) {
	args := m.Called(ctx, evaluationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Evaluation), args.Error(1)
}

func sampleEvaluation() *entity.Evaluation {
	return &entity.Evaluation{
		ID:              3,
		Title:           "Réseaux",
		DurationMinutes: 5,
		Questions: []entity.Question{{
			ID:             11,
			EvaluationID:   3,
			Position:       1,
			Text:           "Port SSH ?",
			Type:           entity.QuestionTypeSingleChoice,
			Options:        entity.StringArray{"21", "22"},
			CorrectAnswers: entity.StringArray{"22"},
			Points:         2,
		}},
	}
}

// ============================================================================
// Тесты
// ============================================================================

func TestCachedEvaluationProvider_Miss(t *testing.T) {
	// Arrange
	cache := new(MockCacheRepo)
	next := new(MockEvaluationProvider)
	p := NewCachedEvaluationProvider(next, cache, time.Minute)
	ctx := context.Background()

	cache.On("GetJSON", mock.Anything, "evaluation:3", mock.Anything).Return(apperrors.ErrNotFound)
	next.On("FetchEvaluation", ctx, uint(3)).Return(sampleEvaluation(), nil)
	cache.On("SetJSON", mock.Anything, "evaluation:3", mock.AnythingOfType("provider.cachedEvaluation"), time.Minute).Return(nil)

	// Act
	eval, err := p.FetchEvaluation(ctx, 3)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Réseaux", eval.Title)
	cache.AssertExpectations(t)
	next.AssertExpectations(t)
}

func TestCachedEvaluationProvider_HitKeepsCorrectAnswers(t *testing.T) {
	// Arrange
	cache := new(MockCacheRepo)
	next := new(MockEvaluationProvider)
	p := NewCachedEvaluationProvider(next, cache, time.Minute)

	stored, err := json.Marshal(newCachedEvaluation(sampleEvaluation()))
	require.NoError(t, err)

	cache.On("GetJSON", mock.Anything, "evaluation:3", mock.Anything).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(stored, args.Get(2)))
	}).Return(nil)

	// Act
	eval, err := p.FetchEvaluation(context.Background(), 3)

	// Assert
	require.NoError(t, err)
	require.Len(t, eval.Questions, 1)
	assert.Equal(t, entity.StringArray{"22"}, eval.Questions[0].CorrectAnswers, "Правильные ответы должны переживать кеш")
	next.AssertNotCalled(t, "FetchEvaluation", mock.Anything, mock.Anything)
}

func TestCachedEvaluationProvider_CacheErrorFallsThrough(t *testing.T) {
	// Arrange
	cache := new(MockCacheRepo)
	next := new(MockEvaluationProvider)
	p := NewCachedEvaluationProvider(next, cache, 0)
	ctx := context.Background()

	cache.On("GetJSON", mock.Anything, "evaluation:3", mock.Anything).Return(errors.New("redis down"))
	next.On("FetchEvaluation", ctx, uint(3)).Return(sampleEvaluation(), nil)
	cache.On("SetJSON", mock.Anything, "evaluation:3", mock.Anything, DefaultEvaluationTTL).Return(errors.New("redis down"))

	// Act
	eval, err := p.FetchEvaluation(ctx, 3)

	// Assert
	require.NoError(t, err, "Ошибка кеша не должна мешать загрузке")
	assert.Equal(t, uint(3), eval.ID)
}

func TestCachedEvaluationProvider_SourceError(t *testing.T) {
	cache := new(MockCacheRepo)
	next := new(MockEvaluationProvider)
	p := NewCachedEvaluationProvider(next, cache, time.Minute)
	ctx := context.Background()

	cache.On("GetJSON", mock.Anything, "evaluation:9", mock.Anything).Return(apperrors.ErrNotFound)
	next.On("FetchEvaluation", ctx, uint(9)).Return(nil, apperrors.ErrNotFound)

	_, err := p.FetchEvaluation(ctx, 9)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	cache.AssertNotCalled(t, "SetJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
