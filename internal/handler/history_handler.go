package handler

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/service/history"
	"github.com/yourusername/evaluation-api/internal/service/review"
)

const historyComponent = "HistoryHandler"

// HistoryHandler отдает учащемуся его попытки, статистику и разбор попытки
type HistoryHandler struct {
	aggregator *history.Aggregator
	reconciler *review.Reconciler
}

// NewHistoryHandler создает обработчик истории
func NewHistoryHandler(aggregator *history.Aggregator, reconciler *review.Reconciler) *HistoryHandler {
	return &HistoryHandler{aggregator: aggregator, reconciler: reconciler}
}

// ListMyAttempts возвращает последние попытки учащегося
// GET /api/me/attempts?limit=
func (h *HistoryHandler) ListMyAttempts(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	attempts, err := h.aggregator.Attempts(c.Request.Context(), learner.ID, limit)
	if err != nil {
		handleError(c, historyComponent, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

// GetMyStats возвращает статистику учащегося
// GET /api/me/stats
func (h *HistoryHandler) GetMyStats(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	stats, err := h.aggregator.Stats(c.Request.Context(), learner.ID)
	if err != nil {
		handleError(c, historyComponent, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetReview возвращает разбор попытки с пересчитанными вердиктами
// GET /api/attempts/:id/review
func (h *HistoryHandler) GetReview(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	rev, err := h.reconciler.Review(c.Request.Context(), c.MustGet("attemptID").(uint), learner)
	if err != nil {
		handleError(c, historyComponent, err)
		return
	}
	c.JSON(http.StatusOK, rev)
}

// ExportMyAttempts экспортирует историю в CSV или Excel
// GET /api/me/attempts/export?format=csv|xlsx
func (h *HistoryHandler) ExportMyAttempts(c *gin.Context) {
	learner, ok := requireLearner(c)
	if !ok {
		return
	}
	attempts, err := h.aggregator.Attempts(c.Request.Context(), learner.ID, 0)
	if err != nil {
		handleError(c, historyComponent, err)
		return
	}
	stats := h.aggregator.Summarize(attempts)

	filename := fmt.Sprintf("attempts_%d_%s", learner.ID, time.Now().Format("2006-01-02"))
	switch c.DefaultQuery("format", "csv") {
	case "xlsx":
		exportXLSX(c, attempts, stats, filename)
	default:
		exportCSV(c, attempts, stats.PassThreshold, filename)
	}
}

var exportHeaders = []string{"Попытка", "Оценка", "Баллы", "Всего баллов", "Процент", "Сдано", "Время (сек)", "Дата"}

func attemptRow(a entity.Attempt, threshold float64) []string {
	passed := "Нет"
	if a.IsPassed(threshold) {
		passed = "Да"
	}
	return []string{
		strconv.FormatUint(uint64(a.ID), 10),
		strconv.FormatUint(uint64(a.EvaluationID), 10),
		strconv.Itoa(a.Score),
		strconv.Itoa(a.TotalPoints),
		strconv.FormatFloat(a.Percentage, 'f', 2, 64),
		passed,
		strconv.Itoa(a.ElapsedSeconds),
		a.CreatedAt.Format(time.RFC3339),
	}
}

// exportCSV пишет CSV с BOM для корректного UTF-8 в Excel
func exportCSV(c *gin.Context, attempts []entity.Attempt, threshold float64, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(exportHeaders)
	for _, a := range attempts {
		writer.Write(attemptRow(a, threshold))
	}
}

// exportXLSX пишет попытки через StreamWriter и итоговую статистику отдельным листом
func exportXLSX(c *gin.Context, attempts []entity.Attempt, stats history.Stats, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Попытки"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[%s] Ошибка создания StreamWriter: %v", historyComponent, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		headers[i] = h
	}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[%s] Ошибка записи заголовков: %v", historyComponent, err)
	}
	for i, a := range attempts {
		passed := "Нет"
		if a.IsPassed(stats.PassThreshold) {
			passed = "Да"
		}
		row := []interface{}{a.ID, a.EvaluationID, a.Score, a.TotalPoints, a.Percentage, passed, a.ElapsedSeconds, a.CreatedAt}
		if err := sw.SetRow(fmt.Sprintf("A%d", i+2), row); err != nil {
			log.Printf("[%s] Ошибка записи строки %d: %v", historyComponent, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		log.Printf("[%s] Ошибка при Flush: %v", historyComponent, err)
	}

	summary := "Итоги"
	if _, err := f.NewSheet(summary); err == nil {
		rows := [][]interface{}{
			{"Попыток", stats.Count},
			{"Сдано", stats.Passed},
			{"Средний процент", stats.MeanPercentage},
			{"Лучший процент", stats.MaxPercentage},
			{"Порог сдачи", stats.PassThreshold},
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(summary, cell, &row); err != nil {
				log.Printf("[%s] Ошибка записи итогов: %v", historyComponent, err)
			}
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[%s] Ошибка записи Excel в response: %v", historyComponent, err)
	}
}
