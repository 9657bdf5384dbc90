package server

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/duochat/internal/database"
	"github.com/npezzotti/duochat/internal/stats"
	"github.com/npezzotti/duochat/internal/testutil"
	"github.com/npezzotti/duochat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestNewChatServer(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", "NumActiveClients").Once()
	su.On("RegisterMetric", "NumRelayedEvents").Once()
	su.On("RegisterGauge", "NumOnlineUsers", mock.Anything).Once()
	su.On("RegisterGauge", "NumActiveRooms", mock.Anything).Once()
	su.On("RegisterGauge", "NumTypingStates", mock.Anything).Once()

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, testOptions)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.NotNil(t, cs.presence, "expected presence registry to be initialized")
	assert.NotNil(t, cs.rooms, "expected room membership to be initialized")
	assert.NotNil(t, cs.typing, "expected typing tracker to be initialized")
	assert.NotNil(t, cs.router, "expected router to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.registerChan, "expected registerChan to be initialized")
	assert.NotNil(t, cs.deregisterChan, "expected deregisterChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
}

func TestNewChatServer_invalidOptions(t *testing.T) {
	tcases := []struct {
		name string
		opts Options
	}{
		{name: "zero typing timeout", opts: Options{StoreWriteTimeout: time.Second}},
		{name: "zero write timeout", opts: Options{TypingTimeout: time.Second}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs, err := NewChatServer(testutil.TestLogger(t), nil, permissiveStats(), tc.opts)
			assert.Error(t, err, "expected error for invalid options")
			assert.Nil(t, cs, "expected no ChatServer")
		})
	}
}

func TestChatServer_gauges(t *testing.T) {
	su := permissiveStats()
	cs, err := NewChatServer(testutil.TestLogger(t), nil, su, testOptions)
	if err != nil {
		t.Fatalf("new chat server: %v", err)
	}

	gauges := map[string]func() any{}
	for _, call := range su.Calls {
		if call.Method == "RegisterGauge" {
			gauges[call.Arguments.String(0)] = call.Arguments.Get(1).(func() any)
		}
	}

	c := newTestClient(t, cs, "c1", "alice")
	cs.handleRegister(c)
	cs.rooms.Join("c1", "r1")
	cs.typing.Start("r1", c.user, "c1")

	assert.Equal(t, 1, gauges["NumOnlineUsers"](), "expected one online user")
	assert.Equal(t, 1, gauges["NumActiveRooms"](), "expected one active room")
	assert.Equal(t, 1, gauges["NumTypingStates"](), "expected one typing state")

	cs.handleDeregister(c)
	assert.Equal(t, 0, gauges["NumOnlineUsers"](), "expected no online users")
	assert.Equal(t, 0, gauges["NumActiveRooms"](), "expected no active rooms")
	assert.Equal(t, 0, gauges["NumTypingStates"](), "expected no typing states")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-cs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-cs.stop:
				// never close done to simulate a hang
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestChatServerShutdown_Integration(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("UpdatePresence", mock.Anything, "alice", true, mock.Anything).Return(nil).Maybe()
	db.On("UpdatePresence", mock.Anything, "alice", false, mock.Anything).Return(nil).Once()

	cs, err := NewChatServer(testutil.TestLogger(t), db, permissiveStats(), testOptions)
	if err != nil {
		t.Fatalf("new chat server: %v", err)
	}
	go cs.Run()

	c := newTestClient(t, cs, "c1", "alice")
	assert.NoError(t, cs.RegisterClient(c), "expected registration to succeed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx), "expected successful shutdown with active clients")

	assert.Empty(t, cs.Connections(), "expected every client to be torn down")
	assert.False(t, cs.Status("alice").Online, "expected alice offline after shutdown")

	select {
	case <-c.stop:
	default:
		t.Error("expected client to be stopped")
	}

	assert.ErrorIs(t, cs.RegisterClient(newTestClient(t, cs, "c2", "bob")), ErrServerStopped, "expected registration after shutdown to fail")
}

func TestChatServer_RegisterClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("RegisterGauge", mock.Anything, mock.Anything)
	su.On("Incr", "NumActiveClients").Once()
	su.On("Decr", "NumActiveClients").Once()
	defer su.AssertExpectations(t)

	cs, err := NewChatServer(testutil.TestLogger(t), permissiveStore(), su, testOptions)
	if err != nil {
		t.Fatalf("new chat server: %v", err)
	}
	startTestChatServer(t, cs)

	c := newTestClient(t, cs, "c1", "alice")
	assert.NoError(t, cs.RegisterClient(c), "expected registration to succeed")
	assert.Equal(t, []string{"c1"}, connIds(cs.Connections()), "expected client to be registered")
	assert.True(t, cs.Status("alice").Online, "expected alice online")
	assert.True(t, cs.KnowsUser("alice"), "expected alice to be known")

	added, err := cs.rooms.Join("c1", "r1")
	assert.NoError(t, err, "expected registered client to be able to join")
	assert.True(t, added, "expected join to add client")

	// the transport may report the disconnect more than once
	c.cleanup()
	cs.unregisterClient(c)
	cs.unregisterClient(c)

	assert.Eventually(t, func() bool {
		return len(cs.Connections()) == 0
	}, time.Second, 10*time.Millisecond, "expected client to be removed")
	assert.False(t, cs.Status("alice").Online, "expected alice offline")
	assert.Empty(t, cs.rooms.Members("r1"), "expected client to be removed from rooms")
}

func TestChatServer_scenario_twoUsers(t *testing.T) {
	cs := newTestChatServer(t)
	startTestChatServer(t, cs)

	a := newTestClient(t, cs, "conn-a", "alice")
	b := newTestClient(t, cs, "conn-b", "bob")
	assert.NoError(t, cs.RegisterClient(a))
	assert.NoError(t, cs.RegisterClient(b))

	cs.dispatch(a, &ClientMessage{Join: &Join{RoomId: "R1"}})
	cs.dispatch(b, &ClientMessage{Join: &Join{RoomId: "R1"}})
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, connIds(cs.rooms.Members("R1")), "expected both connections in R1")

	m1 := &types.Message{Id: "M1", ChatId: "R1", Sender: types.Sender{Id: "alice"}, Content: "hi"}
	cs.dispatch(a, &ClientMessage{BaseMessage: BaseMessage{Id: 7}, Send: m1})

	event := nextEvent(t, b.send)
	assert.Equal(t, m1, event.MessageCreated, "expected bob to receive M1")
	assert.Empty(t, drainEvents(a.send), "expected alice not to receive her own message")

	a.cleanup()

	event = nextEvent(t, b.send)
	if assert.NotNil(t, event.Notification, "expected a notification") &&
		assert.NotNil(t, event.Notification.PresenceOffline, "expected presence-offline") {
		assert.Equal(t, "alice", event.Notification.PresenceOffline.UserId, "expected alice to go offline")
	}
	assert.Equal(t, []string{"conn-b"}, connIds(cs.rooms.Members("R1")), "expected R1 to drop to bob")

	b.cleanup()
	assert.Eventually(t, func() bool {
		return len(cs.Connections()) == 0
	}, time.Second, 10*time.Millisecond, "expected bob to be torn down")

	b2 := newTestClient(t, cs, "conn-b2", "bob")
	assert.NoError(t, cs.RegisterClient(b2))
	cs.dispatch(b2, &ClientMessage{Join: &Join{RoomId: "R1"}})
	assert.Equal(t, []string{"conn-b2"}, connIds(cs.rooms.Members("R1")), "expected R1 to contain only the new connection")
}

func TestChatServer_scenario_twoTabs(t *testing.T) {
	cs := newTestChatServer(t)
	startTestChatServer(t, cs)

	tab1 := newTestClient(t, cs, "tab-1", "alice")
	tab2 := newTestClient(t, cs, "tab-2", "alice")
	b := newTestClient(t, cs, "conn-b", "bob")
	for _, c := range []*Client{tab1, tab2, b} {
		assert.NoError(t, cs.RegisterClient(c))
	}

	tab1.cleanup()
	assert.Eventually(t, func() bool {
		return len(cs.Connections()) == 2
	}, time.Second, 10*time.Millisecond, "expected first tab to be torn down")
	assert.True(t, cs.Status("alice").Online, "expected alice to stay online with one tab")
	assert.Empty(t, drainEvents(b.send), "expected no presence event while a tab remains")

	tab2.cleanup()
	event := nextEvent(t, b.send)
	assert.Equal(t, "alice", event.Notification.PresenceOffline.UserId, "expected alice to go offline")
	assert.False(t, cs.Status("alice").Online, "expected alice offline")

	tab2.cleanup()
	cs.unregisterClient(tab2)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, drainEvents(b.send), "expected exactly one presence-offline event")
}

func TestChatServer_relayRequiresMembership(t *testing.T) {
	cs := newTestChatServer(t)
	startTestChatServer(t, cs)

	a := newTestClient(t, cs, "conn-a", "alice")
	b := newTestClient(t, cs, "conn-b", "bob")
	assert.NoError(t, cs.RegisterClient(a))
	assert.NoError(t, cs.RegisterClient(b))
	cs.dispatch(b, &ClientMessage{Join: &Join{RoomId: "R1"}})

	cs.dispatch(a, &ClientMessage{BaseMessage: BaseMessage{Id: 3}, Delete: &Delete{MessageId: "M1", RoomId: "R1"}})

	resp := <-a.send
	if assert.NotNil(t, resp.Response, "expected a response") {
		assert.Equal(t, 403, resp.Response.ResponseCode, "expected forbidden response")
		assert.Equal(t, 3, resp.Id, "expected response to echo the request id")
	}
	assert.Empty(t, drainEvents(b.send), "expected nothing relayed from a non-member")
}
