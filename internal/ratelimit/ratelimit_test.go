package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowAdmitsUpToMax(t *testing.T) {
	lim := NewWindow(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, lim.Allow("1.2.3.4"), "request %d", i+1)
	}

	assert.False(t, lim.Allow("1.2.3.4"), "sixth request in window")
	assert.False(t, lim.Allow("1.2.3.4"), "seventh request in window")
}

func TestWindowKeysAreIndependent(t *testing.T) {
	lim := NewWindow(1, time.Minute)

	assert.True(t, lim.Allow("a"))
	assert.False(t, lim.Allow("a"))
	assert.True(t, lim.Allow("b"))
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lim := NewWindow(5, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		assert.True(t, lim.Allow("ip"))
	}
	assert.False(t, lim.Allow("ip"))

	// Still inside the window: denied.
	now = now.Add(59 * time.Second)
	assert.False(t, lim.Allow("ip"))

	// Past the boundary: counter resets and the full budget returns.
	now = now.Add(2 * time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, lim.Allow("ip"), "request %d of new window", i+1)
	}
	assert.False(t, lim.Allow("ip"))
}

func TestWindowConcurrentCounting(t *testing.T) {
	const (
		workers = 8
		perKey  = 100
	)

	lim := NewWindow(workers*perKey/2, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perKey; i++ {
				if lim.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	// Exactly max admissions; a lost update would admit more.
	assert.Equal(t, workers*perKey/2, allowed)
}

func TestWindowDefaults(t *testing.T) {
	lim := NewWindow(0, 0)
	assert.Equal(t, DefaultMax, lim.max)
	assert.Equal(t, DefaultWindow, lim.window)

	for i := 0; i < DefaultMax; i++ {
		assert.True(t, lim.Allow("k"))
	}
	assert.False(t, lim.Allow("k"))
}
