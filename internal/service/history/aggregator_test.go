package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// MockHistoryProvider реализует repository.HistoryProvider
type MockHistoryProvider struct {
	mock.Mock
}

func (m *MockHistoryProvider) ListAttempts(ctx context.Context, employeID uint, limit int) ([]entity.Attempt, error) {
	args := m.Called(ctx, employeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Attempt), args.Error(1)
}

func TestAggregate_Empty(t *testing.T) {
	// Act
	stats := Aggregate(nil, 70)

	// Assert
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0, stats.Passed)
	assert.Equal(t, 0.0, stats.MeanPercentage, "Среднее по пустому списку равно 0, а не NaN")
	assert.Equal(t, 0.0, stats.MaxPercentage)
}

func TestAggregate(t *testing.T) {
	// Arrange
	attempts := []entity.Attempt{
		{Percentage: 70},
		{Percentage: 69.99},
		{Percentage: 100},
		{Percentage: 0},
	}

	// Act
	stats := Aggregate(attempts, 70)

	// Assert
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2, stats.Passed, "Порог 70 включительно")
	assert.InDelta(t, 60.0, stats.MeanPercentage, 0.01)
	assert.Equal(t, 100.0, stats.MaxPercentage)
}

func TestAggregate_AllZero(t *testing.T) {
	stats := Aggregate([]entity.Attempt{{Percentage: 0}, {Percentage: 0}}, 70)

	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 0.0, stats.MaxPercentage)
}

func TestAggregator_Stats(t *testing.T) {
	// Arrange
	ctx := context.Background()
	provider := new(MockHistoryProvider)
	provider.On("ListAttempts", ctx, uint(3), 20).Return([]entity.Attempt{{Percentage: 80}, {Percentage: 40}}, nil)
	agg := NewAggregator(provider, 0, 20)

	// Act
	stats, err := agg.Stats(ctx, 3)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 60.0, stats.MeanPercentage)
	assert.Equal(t, entity.PassThreshold, stats.PassThreshold)
}

func TestAggregator_AttemptsLimitCapped(t *testing.T) {
	ctx := context.Background()
	provider := new(MockHistoryProvider)
	provider.On("ListAttempts", ctx, uint(3), 10).Return([]entity.Attempt{}, nil).Twice()
	agg := NewAggregator(provider, 70, 10)

	_, err := agg.Attempts(ctx, 3, 500)
	require.NoError(t, err)
	_, err = agg.Attempts(ctx, 3, 0)
	require.NoError(t, err)

	provider.AssertExpectations(t)
}

func TestAggregator_ProviderError(t *testing.T) {
	ctx := context.Background()
	provider := new(MockHistoryProvider)
	provider.On("ListAttempts", ctx, uint(3), DefaultLimit).Return(nil, errors.New("boom"))

	_, err := NewAggregator(provider, 70, 0).Stats(ctx, 3)

	assert.Error(t, err)
}
