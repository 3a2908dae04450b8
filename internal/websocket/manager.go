package websocket

import (
	"encoding/json"
	"fmt"
	"log"
)

// Event представляет структуру WebSocket-сообщения
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// inboundEvent - входящее сообщение с отложенным разбором данных
type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Manager маршрутизирует входящие сообщения и отправляет события через hub
type Manager struct {
	hub            *Hub
	messageHandler map[string]func(data json.RawMessage, client *Client) error
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub *Hub) *Manager {
	return &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
	}
}

// Hub возвращает hub менеджера
func (m *Manager) Hub() *Hub {
	return m.hub
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[eventType] = handler
	log.Printf("[WebSocketManager] Зарегистрирован обработчик для сообщений типа: %s", eventType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event inboundEvent
	if err := json.Unmarshal(message, &event); err != nil {
		log.Printf("[WebSocketManager] Некорректное сообщение от %s: %v", client.ConnectionID, err)
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err
	}

	handler, ok := m.messageHandler[event.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil
	}

	if len(event.Data) == 0 {
		event.Data = json.RawMessage("null")
	}
	if err := handler(event.Data, client); err != nil {
		log.Printf("[WebSocketManager] Обработчик '%s' вернул ошибку для соединения %s: %v", event.Type, client.ConnectionID, err)
		return err
	}
	return nil
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Соединение не закрывается.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	m.SendEventToClient(client, SERVER_ERROR, map[string]string{
		"code":    code,
		"message": message,
	})
}

// SendEventToClient отправляет событие одному клиенту
func (m *Manager) SendEventToClient(client *Client, eventType string, data interface{}) {
	if err := m.hub.SendToClient(client, Event{Type: eventType, Data: data}); err != nil {
		log.Printf("[WebSocketManager] Не удалось отправить %s соединению %s: %v", eventType, client.ConnectionID, err)
	}
}

// PublishToSession рассылает событие всем клиентам сессии
func (m *Manager) PublishToSession(sessionID string, eventType string, data interface{}) error {
	_, err := m.hub.Publish(sessionID, Event{Type: eventType, Data: data})
	return err
}

// CloseSession отключает клиентов завершенной сессии
func (m *Manager) CloseSession(sessionID string) {
	m.hub.CloseSession(sessionID)
}

// GetMetrics возвращает текущие метрики WebSocket-системы
func (m *Manager) GetMetrics() map[string]interface{} {
	metrics := m.hub.GetMetrics()
	metrics["client_count"] = m.hub.ClientCount()
	return metrics
}
