package chat

import (
	"sync"
	"time"
)

// DefaultTypingInterval is how long after the last keystroke the stopped
// typing signal fires.
const DefaultTypingInterval = 2 * time.Second

// Debouncer coalesces keystroke bursts into a single stopped-typing event.
// Every draft change publishes typing=true and resets the timer; typing=false
// fires once, the interval after the last change, not once per keystroke.
type Debouncer struct {
	interval time.Duration
	publish  func(isTyping bool)

	mu       sync.Mutex
	timer    *time.Timer
	lastText string
}

func NewDebouncer(interval time.Duration, publish func(isTyping bool)) *Debouncer {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &Debouncer{interval: interval, publish: publish}
}

// Input feeds the current draft text. Unchanged text is ignored so repeated
// notifications for the same draft don't reset the timer.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	if text == d.lastText {
		d.mu.Unlock()
		return
	}
	d.lastText = text
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
	d.mu.Unlock()

	d.publish(true)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.lastText = ""
	d.mu.Unlock()

	d.publish(false)
}

// Stop cancels a pending stopped-typing event without publishing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.lastText = ""
	d.mu.Unlock()
}
