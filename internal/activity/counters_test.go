package activity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersDrainResets(t *testing.T) {
	c := NewCounters()
	c.AddKeystroke()
	c.AddKeystroke()
	c.AddClick()
	c.AddScroll()

	assert.Equal(t, Counts{Keystrokes: 2, Clicks: 1, Scrolls: 1}, c.Peek())
	assert.Equal(t, Counts{Keystrokes: 2, Clicks: 1, Scrolls: 1}, c.Drain())
	assert.Equal(t, Counts{}, c.Drain())
	assert.False(t, c.Peek().HasActivity())
}

func TestCountersConcurrentDrainIsConservative(t *testing.T) {
	const (
		writers   = 8
		perWriter = 5000
	)
	c := NewCounters()

	var wg sync.WaitGroup
	done := make(chan struct{})
	var total Counts
	drained := make(chan Counts)

	go func() {
		var sum Counts
		for {
			select {
			case <-done:
				drained <- sum.Add(c.Drain())
				return
			default:
				sum = sum.Add(c.Drain())
			}
		}
	}()

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.AddKeystroke()
				c.AddClick()
				if j%2 == 0 {
					c.AddScroll()
				}
			}
		}()
	}
	wg.Wait()
	close(done)
	total = <-drained

	assert.Equal(t, uint64(writers*perWriter), total.Keystrokes)
	assert.Equal(t, uint64(writers*perWriter), total.Clicks)
	assert.Equal(t, uint64(writers*perWriter/2), total.Scrolls)
}

func TestCountsAdd(t *testing.T) {
	a := Counts{Keystrokes: 1, Clicks: 2, Scrolls: 3}
	b := Counts{Keystrokes: 10}
	assert.Equal(t, Counts{Keystrokes: 11, Clicks: 2, Scrolls: 3}, a.Add(b))
	assert.True(t, b.HasActivity())
	assert.False(t, Counts{}.HasActivity())
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"firefox", "firefox", true},
		{"Firefox", "firefox", true},
		{"fire*", "firefox", true},
		{"*fox", "Firefox", true},
		{"f?refox", "firefox", true},
		{"chrome", "firefox", false},
		{"fire", "firefox", false},
		{"[", "[", true},
		{"[*", "[x", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.name))
		})
	}

	assert.True(t, MatchAny([]string{"steam*", "code"}, "Code"))
	assert.False(t, MatchAny(nil, "code"))
}
