package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *typingRecorder) publish(isTyping bool) {
	r.mu.Lock()
	r.events = append(r.events, isTyping)
	r.mu.Unlock()
}

func (r *typingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.events))
	copy(out, r.events)
	return out
}

func TestDebouncer(t *testing.T) {
	t.Run("a burst of keystrokes yields one stop event", func(t *testing.T) {
		rec := &typingRecorder{}
		d := NewDebouncer(40*time.Millisecond, rec.publish)

		d.Input("h")
		d.Input("he")
		d.Input("hel")

		require.Eventually(t, func() bool {
			events := rec.snapshot()
			return len(events) > 0 && !events[len(events)-1]
		}, time.Second, 5*time.Millisecond)

		events := rec.snapshot()
		assert.Equal(t, []bool{true, true, true, false}, events)
	})

	t.Run("each change resets the timer", func(t *testing.T) {
		rec := &typingRecorder{}
		d := NewDebouncer(60*time.Millisecond, rec.publish)

		d.Input("a")
		time.Sleep(30 * time.Millisecond)
		d.Input("ab")
		time.Sleep(30 * time.Millisecond)

		// 60ms after the first keystroke but only 30ms after the last one.
		for _, e := range rec.snapshot() {
			assert.True(t, e)
		}

		require.Eventually(t, func() bool {
			events := rec.snapshot()
			return len(events) == 3 && !events[2]
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("unchanged text is ignored", func(t *testing.T) {
		rec := &typingRecorder{}
		d := NewDebouncer(40*time.Millisecond, rec.publish)

		d.Input("same")
		d.Input("same")
		d.Input("same")

		require.Eventually(t, func() bool {
			events := rec.snapshot()
			return len(events) == 2
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, []bool{true, false}, rec.snapshot())
	})

	t.Run("stop cancels the pending event silently", func(t *testing.T) {
		rec := &typingRecorder{}
		d := NewDebouncer(40*time.Millisecond, rec.publish)

		d.Input("a")
		d.Stop()

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, []bool{true}, rec.snapshot())
	})
}
