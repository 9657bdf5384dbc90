package server

import (
	"log"
	"sync"
	"time"

	"github.com/npezzotti/duochat/internal/types"
)

// Relayer delivers an event to the members of a room.
type Relayer interface {
	Relay(roomId string, msg *ServerMessage, excludeConnId string) int
}

type typingKey struct {
	roomId string
	userId string
}

type typingState struct {
	timer *time.Timer
	// gen identifies the timer currently armed for the state
	gen uint64
	// connId is the connection that last signalled typing
	connId string
}

// TypingTracker keeps one expiring typing indicator per room and user.
type TypingTracker struct {
	log     *log.Logger
	relay   Relayer
	timeout time.Duration

	mu     sync.Mutex
	states map[typingKey]*typingState
	gen    uint64
}

func NewTypingTracker(logger *log.Logger, relay Relayer, timeout time.Duration) *TypingTracker {
	return &TypingTracker{
		log:     logger,
		relay:   relay,
		timeout: timeout,
		states:  make(map[typingKey]*typingState),
	}
}

// Start marks user as typing in roomId. Only the first signal emits
// typing-started; later signals re-arm the expiry timer. It reports whether
// the indicator was newly started.
func (tt *TypingTracker) Start(roomId string, user types.User, connId string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	key := typingKey{roomId: roomId, userId: user.Id}
	tt.gen++
	gen := tt.gen

	if st, ok := tt.states[key]; ok {
		st.timer.Stop()
		st.gen = gen
		st.connId = connId
		st.timer = time.AfterFunc(tt.timeout, func() { tt.expire(key, gen) })
		return false
	}

	tt.states[key] = &typingState{
		gen:    gen,
		connId: connId,
		timer:  time.AfterFunc(tt.timeout, func() { tt.expire(key, gen) }),
	}
	tt.relay.Relay(roomId, TypingStartedEvent(roomId, user), connId)

	return true
}

// Stop clears the indicator for user in roomId and reports whether one was
// active.
func (tt *TypingTracker) Stop(roomId, userId string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	key := typingKey{roomId: roomId, userId: userId}
	st, ok := tt.states[key]
	if !ok {
		return false
	}
	tt.clear(key, st)

	return true
}

// StopOrigin clears the indicator for user in roomId if it was last
// signalled by connId.
func (tt *TypingTracker) StopOrigin(roomId, userId, connId string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	key := typingKey{roomId: roomId, userId: userId}
	st, ok := tt.states[key]
	if !ok || st.connId != connId {
		return false
	}
	tt.clear(key, st)

	return true
}

// StopConn clears every indicator last signalled by connId and returns how
// many were cleared.
func (tt *TypingTracker) StopConn(connId string) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	n := 0
	for key, st := range tt.states {
		if st.connId == connId {
			tt.clear(key, st)
			n++
		}
	}

	return n
}

func (tt *TypingTracker) expire(key typingKey, gen uint64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	st, ok := tt.states[key]
	if !ok || st.gen != gen {
		// stopped or refreshed after the timer fired
		return
	}

	tt.log.Printf("typing indicator for %q in room %q expired", key.userId, key.roomId)
	tt.clear(key, st)
}

// clear must be called with tt.mu held.
func (tt *TypingTracker) clear(key typingKey, st *typingState) {
	st.timer.Stop()
	delete(tt.states, key)
	tt.relay.Relay(key.roomId, TypingStoppedEvent(key.roomId, key.userId), st.connId)
}

func (tt *TypingTracker) Active(roomId, userId string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	_, ok := tt.states[typingKey{roomId: roomId, userId: userId}]
	return ok
}

func (tt *TypingTracker) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.states)
}
