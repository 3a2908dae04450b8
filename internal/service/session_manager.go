package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
	"github.com/yourusername/evaluation-api/internal/service/session"
)

// SessionEventPublisher доставляет события сессии подписчикам (WebSocket)
type SessionEventPublisher interface {
	PublishToSession(sessionID string, eventType string, data interface{}) error
	CloseSession(sessionID string)
}

// SessionManagerConfig содержит настройки реестра сессий
type SessionManagerConfig struct {
	// Сколько хранить завершенную сессию для просмотра результата
	CompletedRetention time.Duration
	// Максимальное время жизни любой сессии (например, зависшей в Loading)
	MaxSessionAge time.Duration
	// Период очистки реестра
	JanitorInterval time.Duration
	// Таймаут отправки письма с результатом
	NotifyTimeout time.Duration
}

// DefaultSessionManagerConfig возвращает конфигурацию по умолчанию
func DefaultSessionManagerConfig() *SessionManagerConfig {
	return &SessionManagerConfig{
		CompletedRetention: 30 * time.Minute,
		MaxSessionAge:      24 * time.Hour,
		JanitorInterval:    time.Minute,
		NotifyTimeout:      30 * time.Second,
	}
}

type sessionEntry struct {
	controller *session.Controller
	finishedAt time.Time
}

// SessionManager владеет живыми сессиями прохождения оценок.
// Контроллеры не вызываются под mu: их события возвращаются в Emit
// из цикла сессии, и Emit сам берет mu.
type SessionManager struct {
	config        *SessionManagerConfig
	sessionConfig *session.Config
	deps          session.Dependencies
	publisher     SessionEventPublisher
	notifier      ResultNotifier
	clock         clock.WithTicker

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionManager создает реестр сессий и запускает очистку.
// publisher и notifier могут быть nil.
func NewSessionManager(
	config *SessionManagerConfig,
	sessionConfig *session.Config,
	deps session.Dependencies,
	publisher SessionEventPublisher,
	notifier ResultNotifier,
) *SessionManager {
	if config == nil {
		config = DefaultSessionManagerConfig()
	}
	if sessionConfig == nil {
		sessionConfig = session.DefaultConfig()
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if notifier == nil {
		notifier = &NoopResultNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		config:        config,
		sessionConfig: sessionConfig,
		deps:          deps,
		publisher:     publisher,
		notifier:      notifier,
		clock:         deps.Clock,
		sessions:      make(map[string]*sessionEntry),
		ctx:           ctx,
		cancel:        cancel,
	}
	sm.deps.Events = sm

	sm.wg.Add(1)
	go sm.runJanitor()

	log.Println("[SessionManager] Реестр сессий инициализирован")
	return sm
}

// Open создает сессию и загружает оценку. При ошибке загрузки сессия
// остается в реестре в состоянии Loading и возвращается вместе с ошибкой,
// чтобы клиент мог повторить загрузку через Reload.
func (sm *SessionManager) Open(ctx context.Context, evaluationID uint, learner entity.Learner) (*session.Controller, error) {
	if evaluationID == 0 {
		return nil, fmt.Errorf("%w: evaluation id is required", apperrors.ErrValidation)
	}
	if learner.ID == 0 {
		return nil, fmt.Errorf("%w: learner identity is required", apperrors.ErrUnauthorized)
	}
	if sm.ctx.Err() != nil {
		return nil, apperrors.ErrSessionClosed
	}

	deps := sm.deps
	ctrl := session.NewController(evaluationID, learner, sm.sessionConfig, &deps)

	sm.mu.Lock()
	sm.sessions[ctrl.ID()] = &sessionEntry{controller: ctrl}
	total := len(sm.sessions)
	sm.mu.Unlock()

	log.Printf("[SessionManager] Открыта сессия %s: оценка #%d, учащийся #%d (всего сессий: %d)",
		ctrl.ID(), evaluationID, learner.ID, total)

	if err := ctrl.Load(ctx); err != nil {
		return ctrl, err
	}
	return ctrl, nil
}

// Reload повторяет загрузку оценки для сессии в состоянии Loading
func (sm *SessionManager) Reload(ctx context.Context, sessionID string, learner entity.Learner) (*session.Controller, error) {
	ctrl, err := sm.Get(sessionID, learner)
	if err != nil {
		return nil, err
	}
	return ctrl, ctrl.Load(ctx)
}

// Get возвращает сессию, принадлежащую учащемуся
func (sm *SessionManager) Get(sessionID string, learner entity.Learner) (*session.Controller, error) {
	sm.mu.RLock()
	entry, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
	}
	if entry.controller.Learner().ID != learner.ID {
		return nil, fmt.Errorf("%w: session %s belongs to another learner", apperrors.ErrForbidden, sessionID)
	}
	return entry.controller, nil
}

// Abandon закрывает сессию учащегося без отправки
func (sm *SessionManager) Abandon(sessionID string, learner entity.Learner) error {
	ctrl, err := sm.Get(sessionID, learner)
	if err != nil {
		return err
	}
	sm.remove(ctrl)
	log.Printf("[SessionManager] Сессия %s закрыта учащимся #%d", sessionID, learner.ID)
	return nil
}

// Retake открывает новую сессию по той же оценке. Исходная сессия должна
// быть завершена; она закрывается, ее попытка остается в истории.
func (sm *SessionManager) Retake(ctx context.Context, sessionID string, learner entity.Learner) (*session.Controller, error) {
	prev, err := sm.Get(sessionID, learner)
	if err != nil {
		return nil, err
	}

	state, err := prev.State()
	if err != nil {
		return nil, err
	}
	if state != session.StateCompleted {
		return nil, fmt.Errorf("%w: session %s is %s", apperrors.ErrConflict, sessionID, state)
	}

	sm.remove(prev)
	log.Printf("[SessionManager] Повторное прохождение оценки #%d учащимся #%d (было: %s)",
		prev.EvaluationID(), learner.ID, sessionID)
	return sm.Open(ctx, prev.EvaluationID(), learner)
}

// Count возвращает количество сессий в реестре
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Emit получает события всех сессий. Вызывается из цикла сессии,
// поэтому не блокируется: письмо отправляется в отдельной горутине.
func (sm *SessionManager) Emit(event session.Event) {
	if sm.publisher != nil {
		if err := sm.publisher.PublishToSession(event.SessionID, event.Type, event.Data); err != nil {
			log.Printf("[SessionManager] Не удалось отправить событие %s сессии %s: %v", event.Type, event.SessionID, err)
		}
	}

	switch event.Type {
	case session.EventCompleted:
		attempt, ok := event.Data.(entity.Attempt)
		if !ok {
			return
		}
		sm.mu.Lock()
		entry, found := sm.sessions[event.SessionID]
		if found {
			entry.finishedAt = sm.clock.Now()
		}
		sm.mu.Unlock()
		if found {
			sm.notify(entry.controller.Learner(), attempt)
		}

	case session.EventClosed:
		if sm.publisher != nil {
			sm.publisher.CloseSession(event.SessionID)
		}
	}
}

func (sm *SessionManager) notify(learner entity.Learner, attempt entity.Attempt) {
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()

		ctx, cancel := context.WithTimeout(sm.ctx, sm.config.NotifyTimeout)
		defer cancel()
		if err := sm.notifier.NotifyResult(ctx, learner, attempt); err != nil {
			log.Printf("[SessionManager] Не удалось отправить результат попытки #%d учащемуся #%d: %v", attempt.ID, learner.ID, err)
		}
	}()
}

// remove убирает сессию из реестра и закрывает ее вне блокировки
func (sm *SessionManager) remove(ctrl *session.Controller) {
	sm.mu.Lock()
	delete(sm.sessions, ctrl.ID())
	sm.mu.Unlock()

	ctrl.Close()
}

func (sm *SessionManager) runJanitor() {
	defer sm.wg.Done()

	ticker := sm.clock.NewTicker(sm.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C():
			if n := sm.sweep(); n > 0 {
				log.Printf("[SessionManager] Удалено устаревших сессий: %d", n)
			}
		}
	}
}

// sweep закрывает завершенные сессии старше CompletedRetention
// и любые сессии старше MaxSessionAge
func (sm *SessionManager) sweep() int {
	now := sm.clock.Now()
	var stale []*session.Controller

	sm.mu.Lock()
	for id, entry := range sm.sessions {
		expired := !entry.finishedAt.IsZero() && now.Sub(entry.finishedAt) >= sm.config.CompletedRetention
		tooOld := now.Sub(entry.controller.CreatedAt()) >= sm.config.MaxSessionAge
		if expired || tooOld {
			delete(sm.sessions, id)
			stale = append(stale, entry.controller)
		}
	}
	sm.mu.Unlock()

	for _, ctrl := range stale {
		ctrl.Close()
	}
	return len(stale)
}

// Shutdown закрывает все сессии и ждет отправки писем
func (sm *SessionManager) Shutdown() {
	log.Println("[SessionManager] Завершение работы реестра сессий")
	sm.cancel()

	sm.mu.Lock()
	open := make([]*session.Controller, 0, len(sm.sessions))
	for id, entry := range sm.sessions {
		open = append(open, entry.controller)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, ctrl := range open {
		ctrl.Close()
	}
	sm.wg.Wait()
	log.Printf("[SessionManager] Закрыто сессий: %d", len(open))
}
