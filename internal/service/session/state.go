package session

import "fmt"

// State - состояние жизненного цикла сессии
type State int

const (
	StateLoading State = iota
	StateActive
	StateSubmitting
	StateCompleted
)

// String возвращает имя состояния
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText сериализует состояние именем
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger - источник запроса на отправку
type Trigger string

const (
	TriggerLearner Trigger = "learner"
	TriggerTimeout Trigger = "timeout"
)
