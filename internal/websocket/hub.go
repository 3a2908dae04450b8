package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Hub рассылает события сессий подключенным клиентам.
// Клиенты сгруппированы по ID сессии: у одной сессии может быть
// несколько соединений (например, две вкладки).
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
	metrics  *HubMetrics
}

// NewHub создает пустой hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
		metrics:  NewHubMetrics(),
	}
}

// Register добавляет клиента в группу его сессии
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[c.SessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[c.SessionID] = clients
	}
	clients[c] = struct{}{}
	h.metrics.IncrementTotalConnections()

	log.Printf("[WebSocketHub] Клиент %s подключен к сессии %s (соединений: %d)", c.ConnectionID, c.SessionID, len(clients))
}

// Unregister удаляет клиента и закрывает его канал отправки.
// Повторный вызов безопасен.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	clients, ok := h.sessions[c.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.SessionID)
	}
	c.CloseSend()
	h.metrics.DecrementActiveConnections()
}

// Publish сериализует событие и рассылает его всем клиентам сессии.
// Возвращает количество клиентов, получивших сообщение.
func (h *Hub) Publish(sessionID string, v interface{}) (int, error) {
	message, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event for session %s: %w", sessionID, err)
	}
	return h.PublishBytes(sessionID, message), nil
}

// PublishBytes рассылает готовое сообщение без блокировки. Клиенты,
// у которых буфер переполнен maxBufferWarnings раз подряд, отключаются.
func (h *Hub) PublishBytes(sessionID string, message []byte) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c := range h.sessions[sessionID] {
		if c.trySend(message) {
			delivered++
			continue
		}
		if c.bufferWarnings.Add(1) >= maxBufferWarnings {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.metrics.AddMessageSent(int64(delivered))

	for _, c := range slow {
		log.Printf("[WebSocketHub] Клиент %s сессии %s не успевает читать, отключаем", c.ConnectionID, sessionID)
		h.metrics.AddSlowClientDropped()
		h.Unregister(c)
	}
	return delivered
}

// SendToClient отправляет событие одному клиенту
func (h *Hub) SendToClient(c *Client, v interface{}) error {
	message, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.trySend(message) {
		return fmt.Errorf("client %s send buffer unavailable", c.ConnectionID)
	}
	h.metrics.AddMessageSent(1)
	return nil
}

// CloseSession отключает всех клиентов сессии. Сообщения, уже стоящие
// в очереди, будут дописаны до закрытия соединения.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.sessions[sessionID] {
		h.removeLocked(c)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

// SessionClientCount возвращает количество клиентов сессии
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// GetMetrics возвращает метрики hub
func (h *Hub) GetMetrics() map[string]interface{} {
	h.mu.RLock()
	sessions := len(h.sessions)
	h.mu.RUnlock()

	metrics := h.metrics.Snapshot()
	metrics["sessions"] = sessions
	return metrics
}
