package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// requestSubmission - единственная точка входа в отправку попытки.
// Выполняется в цикле сессии, поэтому проверка и установка флагов атомарны
// относительно тиков и команд учащегося: первый запрос побеждает.
func (c *Controller) requestSubmission(trigger Trigger) error {
	switch c.state {
	case StateLoading:
		return fmt.Errorf("%w: evaluation is not loaded", apperrors.ErrSessionNotActive)
	case StateCompleted:
		return apperrors.ErrAlreadyCompleted
	case StateActive:
		if trigger == TriggerLearner && c.index != c.evaluation.QuestionCount()-1 {
			return apperrors.ErrNotLastQuestion
		}
		c.enterSubmitting(trigger)
	case StateSubmitting:
		if c.inFlight {
			return apperrors.ErrSubmissionInFlight
		}
		if trigger == TriggerTimeout {
			// Повтор после ошибки запускает только учащийся
			return apperrors.ErrSubmissionInFlight
		}
	}

	c.dispatchSubmission()
	return nil
}

// enterSubmitting фиксирует ответы и затраченное время. Отсчет останавливается
// синхронно с переходом, поэтому тики после него не обрабатываются.
func (c *Controller) enterSubmitting(trigger Trigger) {
	c.submitted = true
	c.timer.Cancel()

	duration := c.evaluation.DurationSeconds()
	c.elapsed = clampElapsed(duration-c.timer.Remaining(), duration)
	c.payload = entity.Submission{
		EmployeID:      c.learner.ID,
		Answers:        c.answers.Normalized(),
		ElapsedSeconds: c.elapsed,
	}
	c.state = StateSubmitting

	log.Printf("[SubmissionCoordinator] Сессия %s: отправка (%s), ответов %d, затрачено %d сек",
		c.id, trigger, len(c.payload.Answers), c.elapsed)
	c.emit(EventSubmitting, map[string]interface{}{
		"trigger":         trigger,
		"elapsed_seconds": c.elapsed,
	})
}

func clampElapsed(elapsed, duration int) int {
	if elapsed < 0 {
		return 0
	}
	if elapsed > duration {
		return duration
	}
	return elapsed
}

const lockReleaseTimeout = 2 * time.Second

// dispatchSubmission вызывает сервис оценивания в отдельной горутине
// и возвращает результат в цикл сессии
func (c *Controller) dispatchSubmission() {
	c.inFlight = true
	c.submitErr = nil
	c.submitCalls++

	sessionID := c.id
	evaluationID := c.evaluationID
	payload := c.payload
	call := c.submitCalls

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubmitTimeout)
		defer cancel()

		owner := fmt.Sprintf("%s#%d", sessionID, call)
		attempt, err := c.grade(ctx, sessionID, evaluationID, owner, payload)
		if !c.post(func() { c.onSubmissionResult(call, attempt, err) }) {
			log.Printf("[SubmissionCoordinator] Сессия %s закрыта, результат отправки #%d отброшен", sessionID, call)
		}
	}()
}

// grade выполняет запрос к сервису оценивания под распределенной блокировкой.
// owner уникален для каждой отправки, поэтому после ошибки снимается только своя блокировка.
// Недоступный Redis не блокирует отправку: остается локальная защита сессии.
func (c *Controller) grade(ctx context.Context, sessionID string, evaluationID uint, owner string, payload entity.Submission) (*entity.Attempt, error) {
	cache := c.deps.CacheRepo
	lockKey := SubmissionLockKey(sessionID)

	if cache != nil {
		acquired, err := cache.AcquireLock(ctx, lockKey, owner, c.config.LockTTL)
		switch {
		case err != nil:
			log.Printf("[SubmissionCoordinator] Не удалось взять блокировку %s: %v", lockKey, err)
		case !acquired:
			if marker, err := cache.Get(ctx, AttemptMarkerKey(sessionID)); err == nil {
				return nil, fmt.Errorf("%w: attempt %s already recorded", apperrors.ErrAlreadyCompleted, marker)
			}
			return nil, apperrors.ErrSubmissionInFlight
		}
	}

	attempt, err := c.deps.Grading.SubmitAttempt(ctx, sessionID, evaluationID, payload)
	if err != nil {
		if cache != nil {
			// ctx мог истечь вместе с запросом, блокировку снимаем отдельным контекстом
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			released, relErr := cache.ReleaseLock(releaseCtx, lockKey, owner)
			cancel()
			switch {
			case relErr != nil:
				log.Printf("[SubmissionCoordinator] Не удалось снять блокировку %s: %v", lockKey, relErr)
			case !released:
				log.Printf("[SubmissionCoordinator] Блокировка %s уже истекла или перехвачена", lockKey)
			}
		}
		return nil, err
	}

	if cache != nil {
		if err := cache.Set(ctx, AttemptMarkerKey(sessionID), strconv.FormatUint(uint64(attempt.ID), 10), c.config.LockTTL); err != nil {
			log.Printf("[SubmissionCoordinator] Не удалось сохранить отметку попытки для сессии %s: %v", sessionID, err)
		}
	}
	return attempt, nil
}

func (c *Controller) onSubmissionResult(call int, attempt *entity.Attempt, err error) {
	if c.closed {
		log.Printf("[SubmissionCoordinator] Сессия %s закрыта, результат отправки #%d отброшен", c.id, call)
		return
	}
	c.inFlight = false

	if err == nil && attempt == nil {
		err = fmt.Errorf("%w: grading returned no attempt", apperrors.ErrUnavailable)
	}
	if err != nil {
		c.submitErr = err
		log.Printf("[SubmissionCoordinator] Сессия %s: отправка #%d не удалась: %v", c.id, call, err)
		c.emit(EventSubmitFailed, map[string]interface{}{
			"error":     err.Error(),
			"retryable": !errors.Is(err, apperrors.ErrAlreadyCompleted),
		})
		c.resolveSubmit(nil, err)
		return
	}

	c.attempt = attempt
	c.state = StateCompleted
	c.finishedAt = c.deps.Clock.Now()

	log.Printf("[SubmissionCoordinator] Сессия %s завершена: попытка #%d, %d/%d (%.2f%%)",
		c.id, attempt.ID, attempt.Score, attempt.TotalPoints, attempt.Percentage)
	c.emit(EventCompleted, *attempt)
	c.resolveSubmit(attempt, nil)
}

func (c *Controller) resolveSubmit(attempt *entity.Attempt, err error) {
	for _, w := range c.submitWaiters {
		w <- submitOutcome{attempt: attempt, err: err}
	}
	c.submitWaiters = nil
}
