package session

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// ============================================================================
// Моки для сессии
// ============================================================================

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

// eventRecorder собирает события сессии
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
