package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/internal/service"
	"github.com/yourusername/evaluation-api/internal/service/session"
	"github.com/yourusername/evaluation-api/internal/websocket"
	"github.com/yourusername/evaluation-api/pkg/auth"
)

type wsFixture struct {
	server     *httptest.Server
	handler    *WSHandler
	provider   *mockEvaluationProvider
	grading    *mockGradingService
	sessions   *service.SessionManager
	jwtService *auth.JWTService
}

// newWSFixture поднимает /ws поверх реального реестра сессий и hub
func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		provider: new(mockEvaluationProvider),
		grading:  new(mockGradingService),
	}

	wsManager := websocket.NewManager(websocket.NewHub())
	f.sessions = service.NewSessionManager(
		service.DefaultSessionManagerConfig(),
		session.DefaultConfig(),
		session.Dependencies{
			Evaluations: f.provider,
			Grading:     f.grading,
			Clock:       testingclock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		},
		wsManager,
		nil,
	)

	var err error
	f.jwtService, err = auth.NewJWTService(testSecret, "test", time.Hour, time.Minute)
	require.NoError(t, err)
	f.handler = NewWSHandler(wsManager, f.sessions, f.jwtService, nil)

	router := gin.New()
	router.GET("/ws", f.handler.HandleConnection)
	f.server = httptest.NewServer(router)

	t.Cleanup(func() {
		f.sessions.Shutdown()
		f.server.Close()
	})
	return f
}

func (f *wsFixture) openSession(t *testing.T, learner entity.Learner) (*session.Controller, string) {
	t.Helper()
	f.provider.On("FetchEvaluation", mock.Anything, uint(3)).Return(twoQuestionEvaluation(), nil)
	ctrl, err := f.sessions.Open(context.Background(), 3, learner)
	require.NoError(t, err)

	ticket, err := f.jwtService.GenerateWSTicket(learner, ctrl.ID())
	require.NoError(t, err)
	return ctrl, ticket
}

func (f *wsFixture) dial(t *testing.T, ticket string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?ticket=" + ticket
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *gorillaws.Conn, eventType string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": eventType, "data": data}))
}

// readUntil пропускает события других типов (тики, submitting...)
func readUntil(t *testing.T, conn *gorillaws.Conn, eventType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 20; i++ {
		var ev wsEvent
		require.NoError(t, conn.ReadJSON(&ev), "Ожидалось событие %s", eventType)
		require.NotEqual(t, websocket.SERVER_ERROR, ev.Type, "Сервер вернул ошибку: %s", string(ev.Data))
		if ev.Type != eventType {
			continue
		}
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		return data
	}
	t.Fatalf("событие %s не получено", eventType)
	return nil
}

func TestWSHandler_SnapshotNavigateAndSubmit(t *testing.T) {
	// Arrange
	f := newWSFixture(t)
	learner := entity.Learner{ID: 42}
	ctrl, ticket := f.openSession(t, learner)

	// Act: подключение
	conn := f.dial(t, ticket)

	// Assert: первый снимок приходит сразу
	snap := readUntil(t, conn, websocket.SERVER_SNAPSHOT)
	assert.Equal(t, ctrl.ID(), snap["session_id"])
	assert.Equal(t, "active", snap["state"])
	assert.EqualValues(t, 0, snap["index"])

	send(t, conn, websocket.CLIENT_ANSWER, map[string]interface{}{"option": "A"})
	snap = readUntil(t, conn, websocket.SERVER_SNAPSHOT)
	assert.Equal(t, "A", snap["answer"])

	send(t, conn, websocket.CLIENT_NAVIGATE, map[string]interface{}{"direction": "next"})
	snap = readUntil(t, conn, websocket.SERVER_SNAPSHOT)
	assert.EqualValues(t, 1, snap["index"])

	stored := &entity.Attempt{ID: 9, EvaluationID: 3, EmployeID: 42, Score: 1, TotalPoints: 3, Percentage: 33.33}
	f.grading.On("SubmitAttempt", mock.Anything, ctrl.ID(), uint(3), mock.AnythingOfType("entity.Submission")).Return(stored, nil).Once()

	// Отправка: результат приходит событием сессии
	send(t, conn, websocket.CLIENT_SUBMIT, nil)
	completed := readUntil(t, conn, session.EventCompleted)
	assert.EqualValues(t, 9, completed["attempt_id"])

	state, err := ctrl.State()
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, state)
	f.grading.AssertNumberOfCalls(t, "SubmitAttempt", 1)
}

func TestWSHandler_Heartbeat(t *testing.T) {
	f := newWSFixture(t)
	_, ticket := f.openSession(t, entity.Learner{ID: 42})
	conn := f.dial(t, ticket)
	readUntil(t, conn, websocket.SERVER_SNAPSHOT)

	send(t, conn, websocket.CLIENT_HEARTBEAT, nil)

	hb := readUntil(t, conn, websocket.SERVER_HEARTBEAT)
	assert.NotZero(t, hb["timestamp"])
}

func TestWSHandler_RejectsBadTickets(t *testing.T) {
	f := newWSFixture(t)
	ctrl, _ := f.openSession(t, entity.Learner{ID: 42})

	bearer, err := f.jwtService.GenerateToken(entity.Learner{ID: 42})
	require.NoError(t, err)
	foreign, err := f.jwtService.GenerateWSTicket(entity.Learner{ID: 7}, ctrl.ID())
	require.NoError(t, err)

	tests := []struct {
		name       string
		ticket     string
		wantStatus int
	}{
		{"без тикета", "", http.StatusUnauthorized},
		{"мусор", "not-a-jwt", http.StatusUnauthorized},
		{"токен учащегося вместо тикета", bearer, http.StatusUnauthorized},
		{"тикет чужого учащегося", foreign, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("GET", "/ws?ticket="+tt.ticket, nil)

			f.handler.HandleConnection(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
