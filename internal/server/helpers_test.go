package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/duochat/internal/database"
	"github.com/npezzotti/duochat/internal/stats"
	"github.com/npezzotti/duochat/internal/testutil"
	"github.com/npezzotti/duochat/internal/types"
	"github.com/stretchr/testify/mock"
)

// fakeSub is a Subscriber backed by a buffered channel.
type fakeSub struct {
	id   string
	user string
	ch   chan *ServerMessage
}

func newFakeSub(id, user string) *fakeSub {
	return &fakeSub{id: id, user: user, ch: make(chan *ServerMessage, 16)}
}

func (f *fakeSub) ConnId() string { return f.id }
func (f *fakeSub) UserId() string { return f.user }
func (f *fakeSub) Deliver(msg *ServerMessage) bool {
	select {
	case f.ch <- msg:
		return true
	default:
		return false
	}
}

type relayed struct {
	roomId  string
	msg     *ServerMessage
	exclude string
}

// recordingRelayer records every relay request.
type recordingRelayer struct {
	mu     sync.Mutex
	events []relayed
}

func (r *recordingRelayer) Relay(roomId string, msg *ServerMessage, excludeConnId string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, relayed{roomId: roomId, msg: msg, exclude: excludeConnId})
	return 1
}

func (r *recordingRelayer) snapshot() []relayed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayed(nil), r.events...)
}

func (r *recordingRelayer) count(match func(relayed) bool) int {
	n := 0
	for _, e := range r.snapshot() {
		if match(e) {
			n++
		}
	}
	return n
}

func isTypingStarted(e relayed) bool {
	return e.msg.Notification != nil && e.msg.Notification.TypingStarted != nil
}

func isTypingStopped(e relayed) bool {
	return e.msg.Notification != nil && e.msg.Notification.TypingStopped != nil
}

var testOptions = Options{
	TypingTimeout:     100 * time.Millisecond,
	StoreWriteTimeout: time.Second,
}

func permissiveStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("RegisterGauge", mock.Anything, mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func permissiveStore() *database.MockChatRepository {
	db := &database.MockChatRepository{}
	db.On("UpdatePresence", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return db
}

// newTestChatServer creates a ChatServer with permissive mocks.
func newTestChatServer(t *testing.T) *ChatServer {
	cs, err := NewChatServer(testutil.TestLogger(t), permissiveStore(), permissiveStats(), testOptions)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// startTestChatServer runs cs until the test ends.
func startTestChatServer(t *testing.T, cs *ChatServer) {
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})
}

func newTestClient(t *testing.T, cs *ChatServer, id, userId string) *Client {
	return &Client{
		id:         id,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       types.User{Id: userId, Username: userId},
		send:       make(chan *ServerMessage, 64),
		stop:       make(chan struct{}),
	}
}

// nextEvent returns the next queued message that is not a response.
func nextEvent(t *testing.T, ch <-chan *ServerMessage) *ServerMessage {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Response != nil {
				continue
			}
			return msg
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

// drainEvents returns every queued message that is not a response.
func drainEvents(ch <-chan *ServerMessage) []*ServerMessage {
	var events []*ServerMessage
	for {
		select {
		case msg := <-ch:
			if msg.Response == nil {
				events = append(events, msg)
			}
		default:
			return events
		}
	}
}

func connIds(subs []Subscriber) []string {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ConnId()
	}
	return ids
}
