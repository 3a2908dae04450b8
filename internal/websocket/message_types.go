package websocket

// Сообщения, которые отправляет клиент
const (
	// CLIENT_SYNC запрашивает текущий снимок сессии
	CLIENT_SYNC = "session:sync"

	// CLIENT_ANSWER изменяет ответ на текущий или указанный вопрос
	CLIENT_ANSWER = "session:answer"

	// CLIENT_NAVIGATE переходит к следующему, предыдущему или указанному вопросу
	CLIENT_NAVIGATE = "session:navigate"

	// CLIENT_SUBMIT отправляет попытку (или повторяет после ошибки)
	CLIENT_SUBMIT = "session:submit"

	// CLIENT_HEARTBEAT проверяет соединение
	CLIENT_HEARTBEAT = "user:heartbeat"
)

// Служебные сообщения сервера. События самой сессии
// (session:tick, session:expired...) приходят из контроллера как есть.
const (
	SERVER_SNAPSHOT  = "session:snapshot"
	SERVER_ERROR     = "server:error"
	SERVER_HEARTBEAT = "server:heartbeat"
)
