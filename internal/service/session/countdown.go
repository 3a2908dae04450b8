package session

import (
	"time"

	"k8s.io/utils/clock"
)

// Countdown - обратный отсчет сессии с посекундными тиками.
//
// Все методы, кроме горутины тикера, вызываются только из цикла сессии.
// Каждый запуск получает свой handle; тик несет handle запуска, и тики
// отозванного handle отбрасываются. После Cancel ни onTick, ни onExpire
// больше не вызываются.
type Countdown struct {
	clock    clock.WithTicker
	interval time.Duration
	post     func(func()) bool

	handle     uint64 // 0 - отсчет не запущен
	nextHandle uint64
	stopCh     chan struct{}

	remaining int
	onTick    func(remaining int)
	onExpire  func()
}

// NewCountdown создает отсчет. post доставляет функцию в цикл сессии.
func NewCountdown(clk clock.WithTicker, interval time.Duration, post func(func()) bool) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		clock:    clk,
		interval: interval,
		post:     post,
	}
}

// Start запускает отсчет с initial секунд. Предыдущий запуск отменяется.
func (c *Countdown) Start(initial int, onTick func(remaining int), onExpire func()) uint64 {
	c.Cancel()

	c.nextHandle++
	c.handle = c.nextHandle
	c.remaining = initial
	c.onTick = onTick
	c.onExpire = onExpire
	c.stopCh = make(chan struct{})

	h := c.handle
	if initial <= 0 {
		// Доставка через цикл, чтобы onExpire не вызывался внутри Start
		go c.post(func() { c.deliver(h) })
		return h
	}

	go c.forward(h, c.stopCh)
	return h
}

// Cancel отзывает текущий запуск. Повторный вызов ничего не делает.
func (c *Countdown) Cancel() {
	if c.handle == 0 {
		return
	}
	c.handle = 0
	close(c.stopCh)
	c.onTick = nil
	c.onExpire = nil
}

// Remaining возвращает оставшиеся секунды
func (c *Countdown) Remaining() int {
	return c.remaining
}

// deliver обрабатывает тик в цикле сессии
func (c *Countdown) deliver(h uint64) {
	if h == 0 || h != c.handle {
		return
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		onTick, onExpire := c.onTick, c.onExpire
		c.Cancel()
		if onTick != nil {
			onTick(0)
		}
		if onExpire != nil {
			onExpire()
		}
		return
	}

	if c.onTick != nil {
		c.onTick(c.remaining)
	}
}

// forward пересылает тики часов в цикл сессии до отмены
func (c *Countdown) forward(h uint64, stop <-chan struct{}) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !c.post(func() { c.deliver(h) }) {
				return
			}
		}
	}
}
