package websocket

import (
	"bytes"
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время ожидания следующего pong от клиента.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 2048

	// Размер буфера канала отправки. Тик приходит раз в секунду, поэтому
	// буфер покрывает около минуты зависшего клиента.
	defaultClientBufferSize = 64

	// Количество переполнений буфера до отключения клиента
	maxBufferWarnings = 3
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// MessageHandler обрабатывает входящее сообщение клиента.
// Ошибка считается фатальной и закрывает соединение.
type MessageHandler func(message []byte, client *Client) error

// Client является посредником между WebSocket соединением и hub.
// Каждый клиент привязан к одной сессии оценивания.
type Client struct {
	// ID сессии, события которой получает клиент
	SessionID string

	// ID учащегося
	UserID string

	// Уникальный ID для каждого соединения
	ConnectionID string

	hub  *Hub
	conn *websocket.Conn

	// Буферизованный канал для исходящих сообщений
	send chan []byte

	// Флаг, указывающий что канал send закрыт (для предотвращения panic)
	sendClosed atomic.Bool

	// Счетчик переполнений буфера подряд
	bufferWarnings atomic.Int32
}

// NewClient создает нового клиента для сессии
func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID string) *Client {
	return &Client{
		SessionID:    sessionID,
		UserID:       userID,
		ConnectionID: uuid.New().String(),
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, defaultClientBufferSize),
	}
}

// Run регистрирует клиента в hub и запускает горутины чтения и записи
func (c *Client) Run(handler MessageHandler) {
	if c.SessionID == "" || c.UserID == "" {
		log.Printf("[WebSocket] Клиент без сессии или пользователя, соединение закрыто")
		c.conn.Close()
		return
	}

	c.hub.Register(c)
	go c.writePump()
	go c.readPump(handler)
}

// trySend ставит сообщение в очередь без блокировки.
// Вызывается под блокировкой hub, поэтому не пересекается с CloseSend.
func (c *Client) trySend(message []byte) bool {
	if c.sendClosed.Load() {
		return false
	}
	select {
	case c.send <- message:
		c.bufferWarnings.Store(0)
		return true
	default:
		return false
	}
}

// CloseSend закрывает канал отправки один раз
func (c *Client) CloseSend() bool {
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
		return true
	}
	return false
}

// IsSendClosed сообщает, закрыт ли канал отправки
func (c *Client) IsSendClosed() bool {
	return c.sendClosed.Load()
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(handler MessageHandler) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		log.Printf("[WebSocket] Read pump остановлен: сессия %s, соединение %s", c.SessionID, c.ConnectionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[WebSocket] Ошибка чтения (сессия %s, соединение %s): %v", c.SessionID, c.ConnectionID, err)
			}
			break
		}
		c.hub.metrics.AddMessageReceived()

		if handlerErr := safeHandleMessage(message, c, handler); handlerErr != nil {
			log.Printf("[WebSocket] Ошибка обработчика (сессия %s, соединение %s): %v. Соединение закрывается.",
				c.SessionID, c.ConnectionID, handlerErr)
			break
		}
	}
}

// safeHandleMessage вызывает обработчик с recover
func safeHandleMessage(message []byte, client *Client, handler MessageHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WebSocket] PANIC в обработчике (сессия %s, соединение %s): %v\n%s",
				client.SessionID, client.ConnectionID, r, string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
	if handler == nil {
		return nil
	}
	return handler(message, client)
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// hub закрыл канал: сессия завершена или клиент отключен
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("[WebSocket] NextWriter (сессия %s, соединение %s): %v", c.SessionID, c.ConnectionID, err)
				return
			}
			if _, err := w.Write(message); err != nil {
				log.Printf("[WebSocket] Ошибка записи (сессия %s, соединение %s): %v", c.SessionID, c.ConnectionID, err)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
