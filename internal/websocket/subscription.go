package websocket

import "sync"

// SubscriptionMap binds each user to at most one connection. The latest
// subscribe wins; the previous connection stays open but stops receiving pushes.
type SubscriptionMap struct {
	mu       sync.RWMutex
	byUser   map[string]Handle
	byHandle map[Handle]string
}

func NewSubscriptionMap() *SubscriptionMap {
	return &SubscriptionMap{
		byUser:   make(map[string]Handle),
		byHandle: make(map[Handle]string),
	}
}

// Subscribe binds userID to h and returns the handle it displaced, if any.
// A handle serves a single user, so rebinding h drops its previous user.
func (s *SubscriptionMap) Subscribe(userID string, h Handle) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevUser, ok := s.byHandle[h]; ok && prevUser != userID {
		delete(s.byUser, prevUser)
	}

	prev, replaced := s.byUser[userID]
	if replaced && prev != h {
		delete(s.byHandle, prev)
	}

	s.byUser[userID] = h
	s.byHandle[h] = userID
	return prev, replaced && prev != h
}

// UnsubscribeByHandle removes the entry pointing at h and returns its user.
func (s *SubscriptionMap) UnsubscribeByHandle(h Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byHandle[h]
	if !ok {
		return "", false
	}
	delete(s.byHandle, h)
	if s.byUser[userID] == h {
		delete(s.byUser, userID)
	}
	return userID, true
}

func (s *SubscriptionMap) Lookup(userID string) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byUser[userID]
	return h, ok
}

func (s *SubscriptionMap) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}
