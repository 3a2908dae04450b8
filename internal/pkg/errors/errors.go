package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken используется, когда токен истек.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict используется для конфликтов состояния (например, повторная запись попытки).
	ErrConflict = errors.New("resource state conflict")

	// ErrUnavailable используется, когда внешний сервис не ответил или ответил ошибкой.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Ошибки сессии прохождения оценки
var (
	// ErrSessionNotActive - действие допустимо только в состоянии Active.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrNotLastQuestion - явная отправка разрешена только на последнем вопросе.
	ErrNotLastQuestion = errors.New("submission allowed only on the last question")

	// ErrSubmissionInFlight - отправка уже выполняется.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrSessionClosed - сессия закрыта, команды больше не принимаются.
	ErrSessionClosed = errors.New("session closed")

	// ErrAlreadyCompleted - попытка уже принята сервисом оценивания.
	ErrAlreadyCompleted = errors.New("session already completed")

	// ErrUnknownQuestion - вопрос не принадлежит оценке.
	ErrUnknownQuestion = errors.New("unknown question")

	// ErrAnswerTypeMismatch - форма ответа не соответствует типу вопроса.
	ErrAnswerTypeMismatch = errors.New("answer does not match question type")
)
