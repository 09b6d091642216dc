package goSession

import (
	"sync"

	"github.com/MrEthical07/goSession/jwt"
)

// SessionState is the derived view of the current token.
//
// IsAuthenticated is true exactly when Token is non-empty and User is set.
// A token that is missing, malformed or expired yields the zero state.
type SessionState struct {
	Token           string
	User            *jwt.Claims
	IsAuthenticated bool
}

func deriveState(token string, v *jwt.Verifier) SessionState {
	if token == "" {
		return SessionState{}
	}
	res := v.Verify(token)
	if !res.Valid {
		return SessionState{}
	}
	return SessionState{Token: token, User: res.Claims, IsAuthenticated: true}
}

// stateHub fans state changes out to subscribers. A subscriber that falls
// behind loses intermediate states but always receives the latest one.
type stateHub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]chan SessionState
	closed bool
}

func newStateHub() *stateHub {
	return &stateHub{subs: make(map[uint64]chan SessionState)}
}

func (h *stateHub) subscribe(buffer int, current SessionState) (<-chan SessionState, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan SessionState, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	ch <- current

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *stateHub) publish(s SessionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest queued state to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (h *stateHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
