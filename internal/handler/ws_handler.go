package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/evaluation-api/internal/handler/dto"
	"github.com/yourusername/evaluation-api/internal/service"
	"github.com/yourusername/evaluation-api/internal/service/session"
	"github.com/yourusername/evaluation-api/internal/websocket"
	"github.com/yourusername/evaluation-api/pkg/auth"
)

const wsComponent = "WSHandler"

// wsSubmitTimeout ограничивает фоновую отправку, запущенную из WebSocket
const wsSubmitTimeout = 30 * time.Second

// WSHandler обрабатывает WebSocket соединения сессий
type WSHandler struct {
	wsManager  *websocket.Manager
	sessions   *service.SessionManager
	jwtService *auth.JWTService
	upgrader   gorillaws.Upgrader
}

// NewWSHandler создает обработчик WebSocket. Пустой allowedOrigins
// разрешает любые источники.
func NewWSHandler(
	wsManager *websocket.Manager,
	sessions *service.SessionManager,
	jwtService *auth.JWTService,
	allowedOrigins []string,
) *WSHandler {
	h := &WSHandler{
		wsManager:  wsManager,
		sessions:   sessions,
		jwtService: jwtService,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			CheckOrigin:       originChecker(allowedOrigins),
			EnableCompression: true,
		},
	}

	// Обработчики регистрируются один раз при создании
	h.registerMessageHandlers()
	return h
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Не браузерный клиент (мобильное приложение, curl)
		if origin == "" || len(allowed) == 0 {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		log.Printf("[%s] Отклонен неразрешенный origin: %s", wsComponent, origin)
		return false
	}
}

// HandleConnection подключает клиента к событиям одной сессии
// GET /ws?ticket=
func (h *WSHandler) HandleConnection(c *gin.Context) {
	// НЕ логируем тикет - это секретные данные аутентификации
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter", "error_type": "unauthorized"})
		return
	}

	claims, err := h.jwtService.ParseWSTicket(ticket)
	if err != nil {
		log.Printf("[%s] Недействительный тикет: %v", wsComponent, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket", "error_type": "unauthorized"})
		return
	}

	ctrl, err := h.sessions.Get(claims.SessionID, claims.Learner())
	if err != nil {
		handleError(c, wsComponent, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту
		log.Printf("[%s] Ошибка upgrade соединения: %v", wsComponent, err)
		return
	}

	client := websocket.NewClient(h.wsManager.Hub(), conn, ctrl.ID(), fmt.Sprintf("%d", claims.EmployeID))
	log.Printf("[%s] Учащийся #%d подключен к сессии %s", wsComponent, claims.EmployeID, ctrl.ID())

	// Первый снимок, чтобы клиент не ждал следующего тика
	if snap, err := ctrl.Snapshot(); err == nil {
		h.wsManager.SendEventToClient(client, websocket.SERVER_SNAPSHOT, snap)
	}

	client.Run(h.wsManager.HandleMessage)
}

// GetMetrics возвращает метрики WebSocket и количество живых сессий
// GET /api/ws/metrics
func (h *WSHandler) GetMetrics(c *gin.Context) {
	metrics := h.wsManager.GetMetrics()
	metrics["sessions"] = h.sessions.Count()
	c.JSON(http.StatusOK, metrics)
}

func (h *WSHandler) registerMessageHandlers() {
	h.wsManager.RegisterHandler(websocket.CLIENT_SYNC, func(_ json.RawMessage, client *websocket.Client) error {
		h.withController(client, func(ctrl *session.Controller) (session.Snapshot, error) {
			return ctrl.Snapshot()
		})
		return nil
	})

	h.wsManager.RegisterHandler(websocket.CLIENT_ANSWER, func(data json.RawMessage, client *websocket.Client) error {
		var req dto.AnswerRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse session:answer event")
			return nil
		}
		h.withController(client, func(ctrl *session.Controller) (session.Snapshot, error) {
			return ctrl.Answer(req.ToEdit())
		})
		return nil
	})

	h.wsManager.RegisterHandler(websocket.CLIENT_NAVIGATE, func(data json.RawMessage, client *websocket.Client) error {
		var req dto.NavigateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse session:navigate event")
			return nil
		}
		h.withController(client, func(ctrl *session.Controller) (session.Snapshot, error) {
			switch req.Direction {
			case "next":
				return ctrl.Next()
			case "previous":
				return ctrl.Previous()
			case "goto":
				return ctrl.GoTo(req.Index)
			default:
				return session.Snapshot{}, fmt.Errorf("unknown direction %q", req.Direction)
			}
		})
		return nil
	})

	// Отправка может ждать сервис оценивания, поэтому не блокирует readPump.
	// Результат приходит клиенту событием сессии.
	h.wsManager.RegisterHandler(websocket.CLIENT_SUBMIT, func(_ json.RawMessage, client *websocket.Client) error {
		ctrl, ok := h.controllerFor(client)
		if !ok {
			return nil
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), wsSubmitTimeout)
			defer cancel()
			if _, err := ctrl.Submit(ctx); err != nil {
				_, code := errorStatus(err)
				h.wsManager.SendErrorToClient(client, code, err.Error())
			}
		}()
		return nil
	})

	h.wsManager.RegisterHandler(websocket.CLIENT_HEARTBEAT, func(_ json.RawMessage, client *websocket.Client) error {
		h.wsManager.SendEventToClient(client, websocket.SERVER_HEARTBEAT, map[string]interface{}{
			"timestamp": time.Now().UnixMilli(),
		})
		return nil
	})
}

// controllerFor находит сессию клиента. Если сессии уже нет, клиент получает ошибку.
func (h *WSHandler) controllerFor(client *websocket.Client) (*session.Controller, bool) {
	learner, err := parseLearner(client.UserID)
	if err != nil {
		h.wsManager.SendErrorToClient(client, "internal_error", "Invalid user ID format")
		return nil, false
	}
	ctrl, err := h.sessions.Get(client.SessionID, learner)
	if err != nil {
		_, code := errorStatus(err)
		h.wsManager.SendErrorToClient(client, code, err.Error())
		return nil, false
	}
	return ctrl, true
}

// withController выполняет команду и отвечает снимком или ошибкой.
// Ошибки команд не закрывают соединение.
func (h *WSHandler) withController(client *websocket.Client, command func(ctrl *session.Controller) (session.Snapshot, error)) {
	ctrl, ok := h.controllerFor(client)
	if !ok {
		return
	}
	snap, err := command(ctrl)
	if err != nil {
		_, code := errorStatus(err)
		h.wsManager.SendErrorToClient(client, code, err.Error())
		return
	}
	h.wsManager.SendEventToClient(client, websocket.SERVER_SNAPSHOT, snap)
}
