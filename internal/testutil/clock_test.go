package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())

	start := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, start, NewManualClock(start).Now())
}

func TestManualClock_Advance(t *testing.T) {
	c := NewManualClock(time.Time{})

	assert.Equal(t, Epoch.Add(8*time.Second), c.Advance(8*time.Second))
	assert.Equal(t, Epoch.Add(8*time.Second), c.Advance(-time.Second), "never goes backwards")
	assert.Equal(t, 8*time.Second, c.Elapsed(Epoch))

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestManualClock_ConcurrentAdvance(t *testing.T) {
	c := NewManualClock(time.Time{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100*time.Millisecond, c.Elapsed(Epoch))
}
