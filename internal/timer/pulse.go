package timer

import (
	"sync"
	"time"
)

// Pulse calls fn periodically until the returned stop function is called.
// stop must not wait for an in-flight call to fn to return.
type Pulse interface {
	Every(fn func()) (stop func())
}

// TickerPulse drives fn from a time.Ticker.
type TickerPulse struct {
	Interval time.Duration
}

func (p TickerPulse) Every(fn func()) func() {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
