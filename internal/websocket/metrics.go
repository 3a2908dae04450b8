package websocket

import (
	"sync/atomic"
	"time"
)

// HubMetrics - счетчики WebSocket-сервера
type HubMetrics struct {
	totalConnections   atomic.Int64
	activeConnections  atomic.Int64
	messagesSent       atomic.Int64
	messagesReceived   atomic.Int64
	slowClientsDropped atomic.Int64
	startTime          time.Time
}

// NewHubMetrics создает новый экземпляр метрик
func NewHubMetrics() *HubMetrics {
	return &HubMetrics{startTime: time.Now()}
}

// IncrementTotalConnections учитывает новое подключение
func (m *HubMetrics) IncrementTotalConnections() {
	m.totalConnections.Add(1)
	m.activeConnections.Add(1)
}

// DecrementActiveConnections учитывает отключение
func (m *HubMetrics) DecrementActiveConnections() {
	if m.activeConnections.Add(-1) < 0 {
		m.activeConnections.Store(0)
	}
}

func (m *HubMetrics) AddMessageSent(count int64) {
	if count > 0 {
		m.messagesSent.Add(count)
	}
}

func (m *HubMetrics) AddMessageReceived() {
	m.messagesReceived.Add(1)
}

func (m *HubMetrics) AddSlowClientDropped() {
	m.slowClientsDropped.Add(1)
}

// Snapshot возвращает текущие значения счетчиков
func (m *HubMetrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"total_connections":    m.totalConnections.Load(),
		"active_connections":   m.activeConnections.Load(),
		"messages_sent":        m.messagesSent.Load(),
		"messages_received":    m.messagesReceived.Load(),
		"slow_clients_dropped": m.slowClientsDropped.Load(),
		"uptime_seconds":       int64(time.Since(m.startTime).Seconds()),
	}
}
