package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
)

// ResultNotifier сообщает учащемуся результат попытки
type ResultNotifier interface {
	NotifyResult(ctx context.Context, learner entity.Learner, attempt entity.Attempt) error
}

// NoopResultNotifier используется, когда рассылка отключена
type NoopResultNotifier struct{}

func (n *NoopResultNotifier) NotifyResult(ctx context.Context, learner entity.Learner, attempt entity.Attempt) error {
	log.Printf("[ResultNotifier] noop: попытка #%d для %s", attempt.ID, learner.Email)
	return nil
}

// ResendResultNotifier отправляет результат письмом через Resend
type ResendResultNotifier struct {
	from      string
	threshold float64
	client    *resend.Client
}

// NewResendResultNotifier создает отправителя писем с результатами
func NewResendResultNotifier(apiKey, from string, threshold float64) (*ResendResultNotifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	if threshold <= 0 {
		threshold = entity.PassThreshold
	}
	return &ResendResultNotifier{
		from:      from,
		threshold: threshold,
		client:    resend.NewClient(apiKey),
	}, nil
}

// NotifyResult отправляет письмо. Ключ идемпотентности - id попытки.
func (n *ResendResultNotifier) NotifyResult(ctx context.Context, learner entity.Learner, attempt entity.Attempt) error {
	if learner.Email == "" {
		return fmt.Errorf("learner email is required")
	}

	params := buildResultEmail(n.from, n.threshold, learner, attempt)
	options := &resend.SendEmailOptions{IdempotencyKey: fmt.Sprintf("attempt-%d", attempt.ID)}

	var lastErr error
	for try := 0; try < 3; try++ {
		_, err := n.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, try); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func buildResultEmail(from string, threshold float64, learner entity.Learner, attempt entity.Attempt) *resend.SendEmailRequest {
	verdict := "not passed"
	if attempt.IsPassed(threshold) {
		verdict = "passed"
	}
	minutes, seconds := attempt.ElapsedSeconds/60, attempt.ElapsedSeconds%60

	return &resend.SendEmailRequest{
		From:    from,
		To:      []string{learner.Email},
		Subject: fmt.Sprintf("Evaluation result: %.2f%%", attempt.Percentage),
		Text: fmt.Sprintf("Score: %d/%d (%.2f%%), %s. Time spent: %dm%02ds.",
			attempt.Score, attempt.TotalPoints, attempt.Percentage, verdict, minutes, seconds),
		Html: fmt.Sprintf("<p>Score: <strong>%d/%d</strong> (%.2f%%), %s.</p><p>Time spent: %dm%02ds.</p>",
			attempt.Score, attempt.TotalPoints, attempt.Percentage, verdict, minutes, seconds),
	}
}

func resendRetryDelay(err error, try int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(try+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(try+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(try+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
