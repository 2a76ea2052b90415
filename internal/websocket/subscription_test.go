package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionMap_ReplaceOnSubscribe(t *testing.T) {
	s := NewSubscriptionMap()

	_, replaced := s.Subscribe("42", "a")
	assert.False(t, replaced)

	prev, replaced := s.Subscribe("42", "b")
	assert.True(t, replaced)
	assert.Equal(t, Handle("a"), prev)

	h, ok := s.Lookup("42")
	assert.True(t, ok)
	assert.Equal(t, Handle("b"), h)
	assert.Equal(t, 1, s.Count())

	// the displaced handle no longer owns an entry
	_, removed := s.UnsubscribeByHandle("a")
	assert.False(t, removed)
	h, _ = s.Lookup("42")
	assert.Equal(t, Handle("b"), h)
}

func TestSubscriptionMap_ResubscribeSameHandle(t *testing.T) {
	s := NewSubscriptionMap()
	s.Subscribe("42", "a")
	_, replaced := s.Subscribe("42", "a")
	assert.False(t, replaced)
	assert.Equal(t, 1, s.Count())
}

func TestSubscriptionMap_HandleRebindsToNewUser(t *testing.T) {
	s := NewSubscriptionMap()
	s.Subscribe("1", "a")
	s.Subscribe("2", "a")

	_, ok := s.Lookup("1")
	assert.False(t, ok)
	h, ok := s.Lookup("2")
	assert.True(t, ok)
	assert.Equal(t, Handle("a"), h)

	userID, removed := s.UnsubscribeByHandle("a")
	assert.True(t, removed)
	assert.Equal(t, "2", userID)
	assert.Equal(t, 0, s.Count())
}

func TestSubscriptionMap_UnsubscribeByHandle(t *testing.T) {
	s := NewSubscriptionMap()
	s.Subscribe("1", "a")
	s.Subscribe("2", "b")

	userID, removed := s.UnsubscribeByHandle("a")
	assert.True(t, removed)
	assert.Equal(t, "1", userID)

	_, ok := s.Lookup("1")
	assert.False(t, ok)
	_, ok = s.Lookup("2")
	assert.True(t, ok)

	_, removed = s.UnsubscribeByHandle("a")
	assert.False(t, removed)
}

func TestSubscriptionMap_AtMostOnePerUserUnderConcurrency(t *testing.T) {
	s := NewSubscriptionMap()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := Handle(fmt.Sprintf("h%d", i))
			s.Subscribe("42", h)
			if i%2 == 0 {
				s.UnsubscribeByHandle(h)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Count(), 1)
	if h, ok := s.Lookup("42"); ok {
		userID, removed := s.UnsubscribeByHandle(h)
		assert.True(t, removed)
		assert.Equal(t, "42", userID)
	}
	assert.Equal(t, 0, s.Count())
}
