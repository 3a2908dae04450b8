package history

import (
	"context"
	"fmt"
	"math"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
)

// DefaultLimit - количество попыток для статистики по умолчанию
const DefaultLimit = 50

// Stats - статистика по попыткам учащегося
type Stats struct {
	Count          int     `json:"count"`
	Passed         int     `json:"passed"`
	MeanPercentage float64 `json:"mean_percentage"`
	MaxPercentage  float64 `json:"max_percentage"`
	PassThreshold  float64 `json:"pass_threshold"`
}

// Aggregate считает статистику. Пустой список дает нули во всех полях.
func Aggregate(attempts []entity.Attempt, threshold float64) Stats {
	stats := Stats{PassThreshold: threshold}
	if len(attempts) == 0 {
		return stats
	}

	sum := 0.0
	for i, a := range attempts {
		if a.IsPassed(threshold) {
			stats.Passed++
		}
		sum += a.Percentage
		if i == 0 || a.Percentage > stats.MaxPercentage {
			stats.MaxPercentage = a.Percentage
		}
	}
	stats.Count = len(attempts)
	stats.MeanPercentage = math.Round(sum/float64(len(attempts))*100) / 100
	return stats
}

// Aggregator загружает историю попыток и считает статистику
type Aggregator struct {
	provider  repository.HistoryProvider
	threshold float64
	limit     int
}

// NewAggregator создает сервис статистики. Нулевые параметры заменяются значениями по умолчанию.
func NewAggregator(provider repository.HistoryProvider, threshold float64, limit int) *Aggregator {
	if threshold <= 0 {
		threshold = entity.PassThreshold
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Aggregator{provider: provider, threshold: threshold, limit: limit}
}

// Attempts возвращает последние попытки учащегося; limit <= 0 означает лимит по умолчанию
func (a *Aggregator) Attempts(ctx context.Context, employeID uint, limit int) ([]entity.Attempt, error) {
	if limit <= 0 || limit > a.limit {
		limit = a.limit
	}
	attempts, err := a.provider.ListAttempts(ctx, employeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts for employe #%d: %w", employeID, err)
	}
	return attempts, nil
}

// Stats возвращает статистику по последним попыткам учащегося
func (a *Aggregator) Stats(ctx context.Context, employeID uint) (Stats, error) {
	attempts, err := a.Attempts(ctx, employeID, a.limit)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(attempts, a.threshold), nil
}

// Summarize считает статистику по уже загруженным попыткам с порогом агрегатора
func (a *Aggregator) Summarize(attempts []entity.Attempt) Stats {
	return Aggregate(attempts, a.threshold)
}
