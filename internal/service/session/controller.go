package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// Controller управляет одной сессией прохождения оценки.
//
// Состояние сессии принадлежит одной горутине (циклу сессии). Команды
// учащегося, тики отсчета и ответы сетевых вызовов доставляются в цикл
// через inbox и выполняются строго по очереди, поэтому блокировки не нужны.
type Controller struct {
	id           string
	evaluationID uint
	learner      entity.Learner
	createdAt    time.Time

	config *Config
	deps   *Dependencies

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Поля ниже читаются и изменяются только в цикле сессии
	state      State
	closed     bool
	loading    bool
	loadErr    error
	evaluation *entity.Evaluation
	index      int
	answers    entity.AnswerSet
	timer      *Countdown

	submitted     bool // переход в Submitting произошел, больше не сбрасывается
	inFlight      bool // запрос к сервису оценивания выполняется
	payload       entity.Submission
	elapsed       int
	submitErr     error
	submitCalls   int
	attempt       *entity.Attempt
	finishedAt    time.Time
	loadWaiters   []chan error
	submitWaiters []chan submitOutcome
}

type submitOutcome struct {
	attempt *entity.Attempt
	err     error
}

// Snapshot - снимок состояния сессии для клиента
type Snapshot struct {
	SessionID        string              `json:"session_id"`
	EvaluationID     uint                `json:"evaluation_id"`
	Title            string              `json:"titre,omitempty"`
	State            State               `json:"state"`
	Index            int                 `json:"index"`
	QuestionCount    int                 `json:"question_count"`
	Question         *entity.Question    `json:"question,omitempty"`
	Answer           *entity.AnswerValue `json:"answer,omitempty"`
	Answers          entity.AnswerSet    `json:"answers"`
	DurationSeconds  int                 `json:"duration_seconds"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	ElapsedSeconds   int                 `json:"elapsed_seconds,omitempty"`
	ReadOnly         bool                `json:"read_only"`
	LoadError        string              `json:"load_error,omitempty"`
	SubmitError      string              `json:"submit_error,omitempty"`
	Attempt          *entity.Attempt     `json:"attempt,omitempty"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
}

// NewController создает сессию в состоянии Loading и запускает ее цикл
func NewController(evaluationID uint, learner entity.Learner, cfg *Config, deps *Dependencies) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}

	c := &Controller{
		id:           uuid.NewString(),
		evaluationID: evaluationID,
		learner:      learner,
		createdAt:    deps.Clock.Now(),
		config:       cfg,
		deps:         deps,
		inbox:        make(chan func(), cfg.InboxSize),
		done:         make(chan struct{}),
		state:        StateLoading,
		answers:      entity.AnswerSet{},
	}
	c.timer = NewCountdown(deps.Clock, cfg.TickInterval, c.post)

	go c.run()
	return c
}

// ID возвращает идентификатор сессии
func (c *Controller) ID() string { return c.id }

// EvaluationID возвращает идентификатор оценки
func (c *Controller) EvaluationID() uint { return c.evaluationID }

// Learner возвращает владельца сессии
func (c *Controller) Learner() entity.Learner { return c.learner }

// CreatedAt возвращает время создания сессии
func (c *Controller) CreatedAt() time.Time { return c.createdAt }

// Done закрывается после Close
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// post доставляет функцию в цикл сессии. Возвращает false, если сессия закрыта.
func (c *Controller) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call выполняет функцию в цикле сессии и ждет результата
func (c *Controller) call(fn func() error) error {
	errCh := make(chan error, 1)
	ok := c.post(func() {
		if c.closed {
			errCh <- apperrors.ErrSessionClosed
			return
		}
		errCh <- fn()
	})
	if !ok {
		return apperrors.ErrSessionClosed
	}

	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return apperrors.ErrSessionClosed
	}
}

// Load загружает оценку и переводит сессию в Active.
// При ошибке сессия остается в Loading, отсчет не запускается, Load можно вызвать снова.
func (c *Controller) Load(ctx context.Context) error {
	waiter := make(chan error, 1)
	err := c.call(func() error {
		if c.state != StateLoading {
			return fmt.Errorf("%w: session is %s", apperrors.ErrConflict, c.state)
		}
		c.loadWaiters = append(c.loadWaiters, waiter)
		if c.loading {
			return nil
		}
		c.startLoad(ctx)
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return apperrors.ErrSessionClosed
	}
}

func (c *Controller) startLoad(ctx context.Context) {
	c.loading = true
	c.loadErr = nil
	evaluationID := c.evaluationID

	go func() {
		evaluation, err := c.deps.Evaluations.FetchEvaluation(ctx, evaluationID)
		c.post(func() { c.onLoaded(evaluation, err) })
	}()
}

func (c *Controller) onLoaded(evaluation *entity.Evaluation, err error) {
	if c.closed {
		log.Printf("[SessionController] Сессия %s закрыта, результат загрузки отброшен", c.id)
		return
	}
	c.loading = false

	if err == nil {
		err = validateEvaluation(evaluation)
	}
	if err != nil {
		c.loadErr = err
		log.Printf("[SessionController] Ошибка загрузки оценки #%d для сессии %s: %v", c.evaluationID, c.id, err)
		c.emit(EventLoadFailed, map[string]interface{}{"error": err.Error()})
		c.resolveLoad(err)
		return
	}

	c.evaluation = evaluation
	c.index = 0
	c.answers = entity.AnswerSet{}
	c.state = StateActive
	c.timer.Start(evaluation.DurationSeconds(), c.onTick, c.onExpire)

	log.Printf("[SessionController] Сессия %s активна: оценка #%d, %d вопросов, %d сек",
		c.id, evaluation.ID, evaluation.QuestionCount(), evaluation.DurationSeconds())
	c.emit(EventLoaded, c.snapshot())
	c.resolveLoad(nil)
}

func (c *Controller) resolveLoad(err error) {
	for _, w := range c.loadWaiters {
		w <- err
	}
	c.loadWaiters = nil
}

func validateEvaluation(evaluation *entity.Evaluation) error {
	if evaluation == nil {
		return fmt.Errorf("%w: empty evaluation", apperrors.ErrValidation)
	}
	if len(evaluation.Questions) == 0 {
		return fmt.Errorf("%w: evaluation #%d has no questions", apperrors.ErrValidation, evaluation.ID)
	}
	if evaluation.DurationMinutes <= 0 {
		return fmt.Errorf("%w: evaluation #%d has non-positive duration %d", apperrors.ErrValidation, evaluation.ID, evaluation.DurationMinutes)
	}
	for _, q := range evaluation.Questions {
		if !q.Type.IsValid() {
			return fmt.Errorf("%w: question %d has unsupported type %q", apperrors.ErrValidation, q.ID, q.Type)
		}
		if q.Points <= 0 {
			return fmt.Errorf("%w: question %d has non-positive points %d", apperrors.ErrValidation, q.ID, q.Points)
		}
	}
	return nil
}

func (c *Controller) onTick(remaining int) {
	c.emit(EventTick, map[string]int{"remaining_seconds": remaining})
}

func (c *Controller) onExpire() {
	log.Printf("[SessionController] Время сессии %s истекло", c.id)
	c.emit(EventExpired, nil)
	if err := c.requestSubmission(TriggerTimeout); err != nil {
		log.Printf("[SessionController] Автоматическая отправка сессии %s не выполнена: %v", c.id, err)
	}
}

// Next переходит к следующему вопросу, не выходя за последний
func (c *Controller) Next() (Snapshot, error) {
	return c.navigate(func(index int) int { return index + 1 })
}

// Previous переходит к предыдущему вопросу, не выходя за первый
func (c *Controller) Previous() (Snapshot, error) {
	return c.navigate(func(index int) int { return index - 1 })
}

// GoTo переходит к вопросу по индексу; индекс ограничивается диапазоном вопросов
func (c *Controller) GoTo(index int) (Snapshot, error) {
	return c.navigate(func(int) int { return index })
}

func (c *Controller) navigate(move func(int) int) (Snapshot, error) {
	var snap Snapshot
	err := c.call(func() error {
		switch c.state {
		case StateLoading:
			return apperrors.ErrSessionNotActive
		case StateCompleted:
			return apperrors.ErrAlreadyCompleted
		case StateActive, StateSubmitting:
		}
		c.index = clampIndex(move(c.index), c.evaluation.QuestionCount())
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

func clampIndex(index, count int) int {
	if index < 0 {
		return 0
	}
	if index > count-1 {
		return count - 1
	}
	return index
}

// Answer применяет действие учащегося к ответу на текущий вопрос. Если указан
// QuestionID, сессия сначала переходит к этому вопросу. Допустимо только в Active.
func (c *Controller) Answer(edit Edit) (Snapshot, error) {
	var snap Snapshot
	err := c.call(func() error {
		if c.state != StateActive {
			return fmt.Errorf("%w: session is %s", apperrors.ErrSessionNotActive, c.state)
		}

		index := c.index
		if edit.QuestionID != nil {
			found, ok := c.evaluation.QuestionIndex(*edit.QuestionID)
			if !ok {
				return fmt.Errorf("%w: question %d", apperrors.ErrUnknownQuestion, *edit.QuestionID)
			}
			index = found
		}

		if err := applyEdit(c.answers, &c.evaluation.Questions[index], edit); err != nil {
			return err
		}
		// Правка указанного вопроса переводит на него курсор
		c.index = index
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// Submit отправляет попытку по действию учащегося и ждет ответа сервиса оценивания.
// Из Active допустимо только на последнем вопросе; из Submitting - повтор после ошибки.
func (c *Controller) Submit(ctx context.Context) (*entity.Attempt, error) {
	waiter := make(chan submitOutcome, 1)
	err := c.call(func() error {
		if err := c.requestSubmission(TriggerLearner); err != nil {
			return err
		}
		c.submitWaiters = append(c.submitWaiters, waiter)
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-waiter:
		return out.attempt, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, apperrors.ErrSessionClosed
	}
}

// Snapshot возвращает текущее состояние сессии
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.call(func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// State возвращает текущее состояние
func (c *Controller) State() (State, error) {
	var st State
	err := c.call(func() error {
		st = c.state
		return nil
	})
	return st, err
}

// Close останавливает отсчет и цикл сессии. Результаты сетевых вызовов,
// пришедшие после закрытия, отбрасываются. Повторный вызов ничего не делает.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.call(func() error {
			c.teardown()
			return nil
		})
		close(c.done)
	})
}

func (c *Controller) teardown() {
	c.closed = true
	c.timer.Cancel()

	for _, w := range c.loadWaiters {
		w <- apperrors.ErrSessionClosed
	}
	c.loadWaiters = nil
	for _, w := range c.submitWaiters {
		w <- submitOutcome{err: apperrors.ErrSessionClosed}
	}
	c.submitWaiters = nil

	log.Printf("[SessionController] Сессия %s закрыта в состоянии %s", c.id, c.state)
	c.emit(EventClosed, map[string]string{"state": c.state.String()})
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:    c.id,
		EvaluationID: c.evaluationID,
		State:        c.state,
		Index:        c.index,
		Answers:      c.answers.Clone(),
		ReadOnly:     c.state != StateActive,
		Attempt:      c.attempt,
	}
	if c.loadErr != nil {
		snap.LoadError = c.loadErr.Error()
	}
	if c.submitErr != nil {
		snap.SubmitError = c.submitErr.Error()
	}
	if !c.finishedAt.IsZero() {
		finishedAt := c.finishedAt
		snap.FinishedAt = &finishedAt
	}
	if c.evaluation == nil {
		return snap
	}

	snap.Title = c.evaluation.Title
	snap.QuestionCount = c.evaluation.QuestionCount()
	snap.DurationSeconds = c.evaluation.DurationSeconds()
	snap.RemainingSeconds = c.timer.Remaining()
	if c.submitted {
		snap.ElapsedSeconds = c.elapsed
	}

	q := c.evaluation.Questions[c.index]
	snap.Question = &q
	if answer, ok := c.answers[q.ID]; ok {
		current := answer.Normalize()
		snap.Answer = &current
	}
	return snap
}

func (c *Controller) emit(eventType string, data interface{}) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.Emit(Event{SessionID: c.id, Type: eventType, Data: data})
}
