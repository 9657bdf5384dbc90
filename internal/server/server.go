package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/duochat/internal/stats"
	"github.com/npezzotti/duochat/internal/types"
)

var ErrServerStopped = errors.New("chat server stopped")

type Options struct {
	// TypingTimeout is how long a typing indicator lives without a refresh.
	TypingTimeout time.Duration
	// StoreWriteTimeout bounds each last-seen write.
	StoreWriteTimeout time.Duration
}

type registerReq struct {
	client *Client
	done   chan struct{}
}

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the connection lifecycle. Connects and disconnects are
// processed one at a time by Run; room, typing and relay operations are
// served directly from each connection's read loop.
type ChatServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	presence       *PresenceRegistry
	rooms          *RoomMembership
	typing         *TypingTracker
	router         *Router
	clients        map[string]*Client
	clientsLock    sync.RWMutex
	registerChan   chan registerReq
	deregisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
	writeTimeout   time.Duration
}

func NewChatServer(logger *log.Logger, store LastSeenStore, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.TypingTimeout <= 0 {
		return nil, fmt.Errorf("typing timeout must be positive")
	}
	if opts.StoreWriteTimeout <= 0 {
		return nil, fmt.Errorf("store write timeout must be positive")
	}

	cs := &ChatServer{
		log:            logger,
		stats:          su,
		presence:       NewPresenceRegistry(logger, store, opts.StoreWriteTimeout),
		rooms:          NewRoomMembership(),
		clients:        make(map[string]*Client),
		registerChan:   make(chan registerReq),
		deregisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		writeTimeout:   opts.StoreWriteTimeout,
	}
	cs.router = NewRouter(logger, cs.rooms, cs)
	cs.typing = NewTypingTracker(logger, cs.router, opts.TypingTimeout)

	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumRelayedEvents")
	su.RegisterGauge("NumOnlineUsers", func() any { return cs.presence.OnlineCount() })
	su.RegisterGauge("NumActiveRooms", func() any { return cs.rooms.RoomCount() })
	su.RegisterGauge("NumTypingStates", func() any { return cs.typing.Len() })

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case req := <-cs.registerChan:
			cs.handleRegister(req.client)
			close(req.done)
		case c := <-cs.deregisterChan:
			cs.handleDeregister(c)
		case req := <-cs.stop:
			cs.handleStop()
			close(req.done)
			return
		}
	}
}

// RegisterClient admits an authenticated connection. It returns once the
// connection is counted in presence and may join rooms.
func (cs *ChatServer) RegisterClient(c *Client) error {
	req := registerReq{client: c, done: make(chan struct{})}

	select {
	case cs.registerChan <- req:
	case <-cs.done:
		return ErrServerStopped
	}

	<-req.done
	return nil
}

func (cs *ChatServer) unregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) handleRegister(c *Client) {
	cs.addClient(c)
	cs.rooms.Register(c)

	if cs.presence.Register(c.id, c.user.Id) {
		cs.log.Printf("user %q is online", c.user.Id)
	}
}

// handleDeregister tears down a connection. Repeated calls for the same
// connection are no-ops.
func (cs *ChatServer) handleDeregister(c *Client) {
	if !cs.removeClient(c) {
		return
	}

	left := cs.rooms.Disconnect(c.id)
	cs.typing.StopConn(c.id)
	cs.log.Printf("connection %q of %q left rooms %v", c.id, c.user.Id, left)

	if userId, offline := cs.presence.Deregister(c.id); offline {
		p := cs.presence.Status(userId)
		n := cs.router.Broadcast(PresenceOfflineEvent(userId, p.LastSeen), c.id)
		cs.log.Printf("user %q is offline, notified %d connections", userId, n)
	}

	c.stopClient()
}

func (cs *ChatServer) handleStop() {
	cs.log.Println("disconnecting clients")
	for _, c := range cs.snapshotClients() {
		cs.handleDeregister(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cs.writeTimeout)
	defer cancel()
	if err := cs.presence.Flush(ctx); err != nil {
		cs.log.Println("flush presence writes:", err)
	}

	close(cs.done)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c.id] = c
	cs.stats.Incr("NumActiveClients")
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c.id]; !ok {
		return false
	}
	delete(cs.clients, c.id)
	cs.stats.Decr("NumActiveClients")

	return true
}

func (cs *ChatServer) snapshotClients() []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.clients))
	for _, c := range cs.clients {
		clients = append(clients, c)
	}

	return clients
}

// Connections lists every live connection.
func (cs *ChatServer) Connections() []Subscriber {
	clients := cs.snapshotClients()
	subs := make([]Subscriber, len(clients))
	for i, c := range clients {
		subs[i] = c
	}

	return subs
}

// Status returns the presence of userId as seen by this process.
func (cs *ChatServer) Status(userId string) types.Presence {
	return cs.presence.Status(userId)
}

// KnowsUser reports whether userId has connected since the process started.
func (cs *ChatServer) KnowsUser(userId string) bool {
	return cs.presence.Known(userId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
