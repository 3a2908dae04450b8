package session

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/yourusername/evaluation-api/internal/domain/repository"
)

// Типы событий сессии, которые уходят подписчикам (WebSocket)
const (
	EventLoaded       = "session:loaded"
	EventLoadFailed   = "session:load_failed"
	EventTick         = "session:tick"
	EventExpired      = "session:expired"
	EventSubmitting   = "session:submitting"
	EventSubmitFailed = "session:submit_failed"
	EventCompleted    = "session:completed"
	EventClosed       = "session:closed"
)

// Config содержит настройки сессии прохождения оценки
type Config struct {
	TickInterval  time.Duration // Период тика обратного отсчета
	SubmitTimeout time.Duration // Таймаут одного запроса к сервису оценивания
	LockTTL       time.Duration // Время жизни блокировки отправки в Redis
	InboxSize     int           // Размер очереди событий цикла сессии
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		TickInterval:  time.Second,
		SubmitTimeout: 15 * time.Second,
		LockTTL:       5 * time.Minute,
		InboxSize:     32,
	}
}

// Event - событие сессии для подписчиков
type Event struct {
	SessionID string      `json:"session_id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
}

// EventSink получает события сессии. Вызывается из цикла сессии и не должен блокироваться.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc адаптер функции к EventSink
type EventSinkFunc func(event Event)

// Emit вызывает функцию
func (f EventSinkFunc) Emit(event Event) {
	f(event)
}

// Dependencies содержит зависимости сессии
type Dependencies struct {
	Evaluations repository.EvaluationProvider
	Grading     repository.GradingService
	CacheRepo   repository.CacheRepository // может быть nil: блокировка отправки только локальная
	Clock       clock.WithTicker
	Events      EventSink // может быть nil
}

// SubmissionLockKey возвращает ключ распределенной блокировки отправки
func SubmissionLockKey(sessionID string) string {
	return fmt.Sprintf("session:%s:submission", sessionID)
}

// AttemptMarkerKey возвращает ключ, под которым сохраняется id принятой попытки
func AttemptMarkerKey(sessionID string) string {
	return fmt.Sprintf("session:%s:attempt", sessionID)
}
