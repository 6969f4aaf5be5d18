package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManagerTracksConnections(t *testing.T) {
	m := NewManager()
	assert.False(t, m.IsOnline("u1"))

	c1 := m.Add("u1", nil)
	c2 := m.Add("u1", nil)
	assert.True(t, m.IsOnline("u1"))
	assert.False(t, m.IsOnline("u2"))

	m.Remove(c1)
	assert.True(t, m.IsOnline("u1"), "one connection remains")

	m.Remove(c2)
	assert.False(t, m.IsOnline("u1"), "group entry removed with last connection")
}

func TestTouchConcurrentWithSweep(t *testing.T) {
	m := NewManager()
	c := m.Add("u1", nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Touch()
			}
		}
	}()

	for i := 0; i < 100; i++ {
		m.sweep(time.Minute)
	}
	close(stop)
	wg.Wait()

	assert.True(t, m.IsOnline("u1"), "a touched connection survives the sweep")
}

func TestSweepEvictsStaleConnections(t *testing.T) {
	m := NewManager()
	stale := m.Add("u1", nil)
	fresh := m.Add("u2", nil)

	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	stale.mu.Unlock()
	fresh.Touch()

	m.sweep(time.Minute)

	assert.False(t, m.IsOnline("u1"), "stale connection evicted")
	assert.True(t, m.IsOnline("u2"), "live connection kept")
}

func TestRemoveUnknownConnectionIsNoop(t *testing.T) {
	m := NewManager()
	c := m.Add("u1", nil)
	m.Remove(c)
	m.Remove(c)
	assert.False(t, m.IsOnline("u1"))
}
