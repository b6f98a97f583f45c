package client_sdk

import "time"

// AppEventKind - вид события жизненного цикла приложения.
type AppEventKind string

const (
	AppBackgrounded AppEventKind = "backgrounded"
	AppForegrounded AppEventKind = "foregrounded"
)

// AppEvent - событие перехода приложения между фоном и активностью.
type AppEvent struct {
	Kind AppEventKind
	At   time.Time
}

// LifecycleNotifier отдает события жизненного цикла приложения.
// Хост-приложение сообщает о сворачивании и возврате, клиент по возврату
// решает, не пора ли обновить конфигурацию.
type LifecycleNotifier interface {
	Events() <-chan AppEvent
}

// ManualLifecycle - простейший LifecycleNotifier: хост дергает методы,
// события уходят в буферизованный канал. Переполненный буфер роняет
// событие, а не блокирует хост.
type ManualLifecycle struct {
	ch chan AppEvent
}

func NewManualLifecycle() *ManualLifecycle {
	return &ManualLifecycle{ch: make(chan AppEvent, 16)}
}

func (l *ManualLifecycle) Events() <-chan AppEvent { return l.ch }

// Background сообщает, что приложение ушло в фон.
func (l *ManualLifecycle) Background() { l.emit(AppBackgrounded) }

// Foreground сообщает, что приложение вернулось на передний план.
func (l *ManualLifecycle) Foreground() { l.emit(AppForegrounded) }

func (l *ManualLifecycle) emit(kind AppEventKind) {
	select {
	case l.ch <- AppEvent{Kind: kind, At: time.Now()}:
	default:
	}
}
