package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, sessionID string) *Client {
	return NewClient(hub, nil, sessionID, "42")
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_PublishOnlyToSessionClients(t *testing.T) {
	// Arrange
	hub := NewHub()
	a1 := newTestClient(hub, "s-1")
	a2 := newTestClient(hub, "s-1")
	b := newTestClient(hub, "s-2")
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)

	// Act
	delivered, err := hub.Publish("s-1", Event{Type: "session:tick", Data: map[string]int{"remaining_seconds": 5}})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Len(t, drain(a1), 1)
	assert.Len(t, drain(a2), 1)
	assert.Empty(t, drain(b), "Клиент другой сессии не должен получать событие")
	assert.Equal(t, 3, hub.ClientCount())
	assert.Equal(t, 2, hub.SessionClientCount("s-1"))
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub, "s-1")
	hub.Register(c)

	hub.Unregister(c)
	hub.Unregister(c)

	assert.True(t, c.IsSendClosed())
	assert.Equal(t, 0, hub.ClientCount())
	delivered, err := hub.Publish("s-1", Event{Type: "session:tick"})
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestHub_SlowClientDropped(t *testing.T) {
	// Arrange
	hub := NewHub()
	c := newTestClient(hub, "s-1")
	hub.Register(c)
	for i := 0; i < defaultClientBufferSize; i++ {
		require.Equal(t, 1, hub.PublishBytes("s-1", []byte("x")))
	}

	// Act
	for i := 0; i < maxBufferWarnings; i++ {
		hub.PublishBytes("s-1", []byte("x"))
	}

	// Assert
	assert.True(t, c.IsSendClosed(), "Клиент с переполненным буфером должен быть отключен")
	assert.Equal(t, 0, hub.SessionClientCount("s-1"))
	assert.EqualValues(t, 1, hub.GetMetrics()["slow_clients_dropped"])
}

func TestHub_CloseSessionKeepsQueuedMessages(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub, "s-1")
	hub.Register(c)
	_, err := hub.Publish("s-1", Event{Type: "session:completed"})
	require.NoError(t, err)

	hub.CloseSession("s-1")

	msgs := drain(c)
	require.Len(t, msgs, 1, "Событие, поставленное до закрытия, должно быть доставлено")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &event))
	assert.Equal(t, "session:completed", event["type"])
	assert.True(t, c.IsSendClosed())
}

func TestManager_HandleMessage(t *testing.T) {
	hub := NewHub()
	manager := NewManager(hub)
	c := newTestClient(hub, "s-1")
	hub.Register(c)

	var got json.RawMessage
	manager.RegisterHandler(CLIENT_NAVIGATE, func(data json.RawMessage, client *Client) error {
		got = data
		return nil
	})

	t.Run("Известный тип", func(t *testing.T) {
		err := manager.HandleMessage([]byte(`{"type":"session:navigate","data":{"direction":"next"}}`), c)
		require.NoError(t, err)
		assert.JSONEq(t, `{"direction":"next"}`, string(got))
	})

	t.Run("Неизвестный тип не закрывает соединение", func(t *testing.T) {
		err := manager.HandleMessage([]byte(`{"type":"quiz:start"}`), c)
		require.NoError(t, err)
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Contains(t, string(msgs[0]), "unknown_message_type")
	})

	t.Run("Некорректный JSON закрывает соединение", func(t *testing.T) {
		err := manager.HandleMessage([]byte(`{not json`), c)
		assert.Error(t, err)
		assert.Contains(t, string(drain(c)[0]), "invalid_message_format")
	})
}

func TestSafeHandleMessage_RecoversPanic(t *testing.T) {
	c := newTestClient(NewHub(), "s-1")

	err := safeHandleMessage([]byte("{}"), c, func([]byte, *Client) error { panic("boom") })

	assert.ErrorContains(t, err, "panic recovered")
}
