package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// Service - локальная реализация провайдера оценок, сервиса оценивания и истории поверх PostgreSQL
type Service struct {
	evaluations repository.EvaluationRepository
	attempts    repository.AttemptRepository
}

// NewService создает локальный сервис оценивания
func NewService(evaluations repository.EvaluationRepository, attempts repository.AttemptRepository) *Service {
	return &Service{evaluations: evaluations, attempts: attempts}
}

// FetchEvaluation возвращает оценку с вопросами
func (s *Service) FetchEvaluation(ctx context.Context, evaluationID uint) (*entity.Evaluation, error) {
	evaluation, err := s.evaluations.GetWithQuestions(evaluationID)
	if err != nil {
		return nil, fmt.Errorf("evaluation #%d: %w", evaluationID, err)
	}
	return evaluation, nil
}

// SubmitAttempt оценивает ответы и сохраняет попытку.
// Повторная отправка той же сессии возвращает уже сохраненную попытку.
func (s *Service) SubmitAttempt(ctx context.Context, sessionID string, evaluationID uint, submission entity.Submission) (*entity.Attempt, error) {
	if submission.EmployeID == 0 {
		return nil, fmt.Errorf("%w: employe_id is required", apperrors.ErrValidation)
	}

	if sessionID != "" {
		existing, err := s.attempts.GetBySessionID(sessionID)
		if err == nil {
			log.Printf("[GradingService] Повторная отправка сессии %s, возвращаю попытку #%d", sessionID, existing.ID)
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("lookup attempt for session %s: %w", sessionID, err)
		}
	}

	evaluation, err := s.FetchEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	answers := submission.Answers.Normalized()
	result, err := Score(evaluation, answers)
	if err != nil {
		return nil, err
	}

	raw, err := encodeAnswers(answers)
	if err != nil {
		return nil, err
	}

	attempt := &entity.Attempt{
		EvaluationID:   evaluation.ID,
		EmployeID:      submission.EmployeID,
		Score:          result.Score,
		TotalPoints:    result.TotalPoints,
		Percentage:     entity.ComputePercentage(result.Score, result.TotalPoints),
		ElapsedSeconds: clampElapsed(submission.ElapsedSeconds, evaluation.DurationSeconds()),
		Answers:        raw,
	}
	if sessionID != "" {
		attempt.SessionID = &sessionID
	}

	if err := s.attempts.Create(attempt); err != nil {
		if errors.Is(err, apperrors.ErrConflict) && sessionID != "" {
			// Параллельная отправка той же сессии уже записала попытку
			return s.attempts.GetBySessionID(sessionID)
		}
		return nil, fmt.Errorf("save attempt: %w", err)
	}

	log.Printf("[GradingService] Попытка #%d: оценка #%d, учащийся #%d, %d/%d (%.2f%%)",
		attempt.ID, evaluation.ID, attempt.EmployeID, attempt.Score, attempt.TotalPoints, attempt.Percentage)
	return attempt, nil
}

// SubmitRawAttempt разбирает ответы по типам вопросов оценки и оценивает попытку
func (s *Service) SubmitRawAttempt(ctx context.Context, sessionID string, evaluationID, employeID uint, raw map[string]json.RawMessage, elapsed int) (*entity.Attempt, error) {
	evaluation, err := s.FetchEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	answers, err := entity.DecodeAnswerSet(evaluation.Questions, raw)
	if err != nil {
		return nil, err
	}
	return s.SubmitAttempt(ctx, sessionID, evaluationID, entity.Submission{
		EmployeID:      employeID,
		Answers:        answers,
		ElapsedSeconds: elapsed,
	})
}

// FetchAttemptDetail восстанавливает разбор попытки по сохраненным ответам
func (s *Service) FetchAttemptDetail(ctx context.Context, attemptID uint) (*entity.AttemptDetail, error) {
	attempt, err := s.attempts.GetByID(attemptID)
	if err != nil {
		return nil, fmt.Errorf("attempt #%d: %w", attemptID, err)
	}
	evaluation, err := s.FetchEvaluation(ctx, attempt.EvaluationID)
	if err != nil {
		return nil, err
	}

	answers, err := entity.DecodeAnswerSet(evaluation.Questions, attempt.Answers)
	if err != nil {
		return nil, fmt.Errorf("decode answers of attempt #%d: %w", attemptID, err)
	}
	result, err := Score(evaluation, answers)
	if err != nil {
		return nil, fmt.Errorf("rescore attempt #%d: %w", attemptID, err)
	}

	detail := &entity.AttemptDetail{
		Attempt:   *attempt,
		Questions: make([]entity.AttemptQuestion, 0, len(evaluation.Questions)),
		Summary: entity.AttemptSummary{
			Score:          attempt.Score,
			TotalQuestions: len(evaluation.Questions),
			CorrectAnswers: result.CorrectAnswers,
			Percentage:     attempt.Percentage,
			ElapsedSeconds: attempt.ElapsedSeconds,
		},
	}
	for _, q := range evaluation.Questions {
		aq := entity.AttemptQuestion{
			ID:             q.ID,
			Question:       q.Text,
			Type:           q.Type,
			Options:        []string(q.Options),
			Points:         q.Points,
			CorrectAnswers: []string(q.CorrectAnswers),
			IsCorrect:      result.PerQuestion[q.ID],
		}
		if answer, ok := answers[q.ID]; ok {
			a := answer
			aq.UserAnswer = &a
		}
		detail.Questions = append(detail.Questions, aq)
	}
	return detail, nil
}

// ListAttempts возвращает последние попытки учащегося
func (s *Service) ListAttempts(ctx context.Context, employeID uint, limit int) ([]entity.Attempt, error) {
	return s.attempts.ListByEmploye(employeID, limit)
}

func encodeAnswers(answers entity.AnswerSet) (entity.RawAnswers, error) {
	raw := make(entity.RawAnswers, len(answers))
	for id, answer := range answers {
		data, err := json.Marshal(answer)
		if err != nil {
			return nil, fmt.Errorf("encode answer %d: %w", id, err)
		}
		raw[fmt.Sprintf("%d", id)] = data
	}
	return raw, nil
}

func clampElapsed(elapsed, duration int) int {
	if elapsed < 0 {
		return 0
	}
	if duration > 0 && elapsed > duration {
		return duration
	}
	return elapsed
}
