package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

const (
	// SessionHeader передает идентификатор сессии сервису оценивания
	SessionHeader = "X-Session-ID"
	// ServiceKeyHeader передает ключ доступа к внешним сервисам
	ServiceKeyHeader = "X-Service-Key"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// Client обращается к внешним провайдеру оценок, сервису оценивания и истории по HTTP
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewClient создает клиент. Если httpClient nil, используется клиент с таймаутом по умолчанию.
func NewClient(baseURL, serviceKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       httpClient,
	}
}

// FetchEvaluation загружает оценку
func (c *Client) FetchEvaluation(ctx context.Context, evaluationID uint) (*entity.Evaluation, error) {
	var evaluation entity.Evaluation
	path := fmt.Sprintf("/api/evaluations/%d", evaluationID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &evaluation); err != nil {
		return nil, fmt.Errorf("fetch evaluation #%d: %w", evaluationID, err)
	}
	for i := range evaluation.Questions {
		evaluation.Questions[i].EvaluationID = evaluation.ID
		evaluation.Questions[i].Position = i + 1
	}
	return &evaluation, nil
}

// SubmitAttempt отправляет ответы на оценивание
func (c *Client) SubmitAttempt(ctx context.Context, sessionID string, evaluationID uint, submission entity.Submission) (*entity.Attempt, error) {
	headers := map[string]string{}
	if sessionID != "" {
		headers[SessionHeader] = sessionID
	}

	var attempt entity.Attempt
	path := fmt.Sprintf("/api/evaluations/%d/attempts", evaluationID)
	if err := c.do(ctx, http.MethodPost, path, headers, submission, &attempt); err != nil {
		return nil, fmt.Errorf("submit attempt for evaluation #%d: %w", evaluationID, err)
	}
	if err := checkAttempt(&attempt); err != nil {
		return nil, err
	}
	attempt.EvaluationID = evaluationID
	attempt.EmployeID = submission.EmployeID
	return &attempt, nil
}

// FetchAttemptDetail загружает разбор попытки
func (c *Client) FetchAttemptDetail(ctx context.Context, attemptID uint) (*entity.AttemptDetail, error) {
	var detail entity.AttemptDetail
	path := fmt.Sprintf("/api/attempts/%d", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &detail); err != nil {
		return nil, fmt.Errorf("fetch attempt #%d detail: %w", attemptID, err)
	}
	return &detail, nil
}

// ListAttempts загружает последние попытки учащегося
func (c *Client) ListAttempts(ctx context.Context, employeID uint, limit int) ([]entity.Attempt, error) {
	path := fmt.Sprintf("/api/employes/%d/attempts", employeID)
	if limit > 0 {
		path += "?" + url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()
	}

	var attempts []entity.Attempt
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &attempts); err != nil {
		return nil, fmt.Errorf("list attempts for employe #%d: %w", employeID, err)
	}
	return attempts, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		req.Header.Set(ServiceKeyHeader, c.serviceKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}

// statusError переводит HTTP-статус в ошибку приложения
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	var base error
	switch resp.StatusCode {
	case http.StatusNotFound:
		base = apperrors.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		base = apperrors.ErrValidation
	case http.StatusConflict:
		base = apperrors.ErrConflict
	case http.StatusUnauthorized:
		base = apperrors.ErrUnauthorized
	case http.StatusForbidden:
		base = apperrors.ErrForbidden
	default:
		base = apperrors.ErrUnavailable
	}
	return fmt.Errorf("%w: status %d: %s", base, resp.StatusCode, msg)
}

// checkAttempt проверяет инварианты ответа сервиса оценивания
func checkAttempt(attempt *entity.Attempt) error {
	if attempt.Score < 0 || attempt.TotalPoints < 0 || attempt.Score > attempt.TotalPoints {
		return fmt.Errorf("%w: inconsistent score %d/%d", apperrors.ErrUnavailable, attempt.Score, attempt.TotalPoints)
	}
	expected := entity.ComputePercentage(attempt.Score, attempt.TotalPoints)
	if math.Abs(expected-attempt.Percentage) > 0.01 {
		log.Printf("[CollabClient] Процент попытки #%d (%.2f) не соответствует баллам %d/%d, использую %.2f",
			attempt.ID, attempt.Percentage, attempt.Score, attempt.TotalPoints, expected)
		attempt.Percentage = expected
	}
	return nil
}
