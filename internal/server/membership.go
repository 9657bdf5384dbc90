package server

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const numRoomShards = 32

var ErrConnNotRegistered = errors.New("connection not registered")

// Subscriber is a live connection events can be delivered to.
type Subscriber interface {
	ConnId() string
	UserId() string
	// Deliver queues msg without blocking and reports whether it was queued.
	Deliver(msg *ServerMessage) bool
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
}

type connRooms struct {
	mu     sync.Mutex
	sub    Subscriber
	rooms  map[string]struct{}
	closed bool
}

// RoomMembership tracks which live connections have joined which rooms.
// Rooms exist only while they have members. Room sets are spread over
// shards so that operations on different rooms rarely contend.
type RoomMembership struct {
	shards [numRoomShards]*roomShard

	connsMu sync.RWMutex
	conns   map[string]*connRooms

	numRooms atomic.Int64
}

func NewRoomMembership() *RoomMembership {
	rm := &RoomMembership{
		conns: make(map[string]*connRooms),
	}
	for i := range rm.shards {
		rm.shards[i] = &roomShard{rooms: make(map[string]map[string]Subscriber)}
	}

	return rm
}

func (rm *RoomMembership) shard(roomId string) *roomShard {
	h := fnv.New32a()
	h.Write([]byte(roomId))
	return rm.shards[h.Sum32()%numRoomShards]
}

// Register makes sub eligible to join rooms.
func (rm *RoomMembership) Register(sub Subscriber) {
	rm.connsMu.Lock()
	defer rm.connsMu.Unlock()

	if _, ok := rm.conns[sub.ConnId()]; ok {
		return
	}
	rm.conns[sub.ConnId()] = &connRooms{
		sub:   sub,
		rooms: make(map[string]struct{}),
	}
}

func (rm *RoomMembership) conn(connId string) *connRooms {
	rm.connsMu.RLock()
	defer rm.connsMu.RUnlock()
	return rm.conns[connId]
}

// Join adds connId to roomId and reports whether it was added. Joining a
// room twice is a no-op.
func (rm *RoomMembership) Join(connId, roomId string) (bool, error) {
	cr := rm.conn(connId)
	if cr == nil {
		return false, ErrConnNotRegistered
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.closed {
		return false, ErrConnNotRegistered
	}
	if _, ok := cr.rooms[roomId]; ok {
		return false, nil
	}

	s := rm.shard(roomId)
	s.mu.Lock()
	members, ok := s.rooms[roomId]
	if !ok {
		members = make(map[string]Subscriber)
		s.rooms[roomId] = members
		rm.numRooms.Add(1)
	}
	members[connId] = cr.sub
	s.mu.Unlock()

	cr.rooms[roomId] = struct{}{}
	return true, nil
}

// Leave removes connId from roomId and reports whether it was a member.
func (rm *RoomMembership) Leave(connId, roomId string) bool {
	cr := rm.conn(connId)
	if cr == nil {
		return false
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, ok := cr.rooms[roomId]; !ok {
		return false
	}
	delete(cr.rooms, roomId)
	rm.remove(connId, roomId)

	return true
}

// remove deletes connId from the room set and prunes the room if it is empty.
func (rm *RoomMembership) remove(connId, roomId string) {
	s := rm.shard(roomId)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[roomId]
	if !ok {
		return
	}
	delete(members, connId)
	if len(members) == 0 {
		delete(s.rooms, roomId)
		rm.numRooms.Add(-1)
	}
}

// Disconnect removes connId from every room it joined and forgets the
// connection. It returns the rooms left, or nil if the connection was
// already disconnected.
func (rm *RoomMembership) Disconnect(connId string) []string {
	rm.connsMu.Lock()
	cr, ok := rm.conns[connId]
	delete(rm.conns, connId)
	rm.connsMu.Unlock()

	if !ok {
		return nil
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.closed = true
	left := make([]string, 0, len(cr.rooms))
	for roomId := range cr.rooms {
		rm.remove(connId, roomId)
		left = append(left, roomId)
	}
	cr.rooms = nil

	return left
}

// Members returns a snapshot of the connections joined to roomId.
func (rm *RoomMembership) Members(roomId string) []Subscriber {
	s := rm.shard(roomId)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.rooms[roomId]
	subs := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		subs = append(subs, sub)
	}

	return subs
}

func (rm *RoomMembership) IsMember(connId, roomId string) bool {
	s := rm.shard(roomId)
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[roomId][connId]
	return ok
}

// Rooms returns the rooms connId has joined.
func (rm *RoomMembership) Rooms(connId string) []string {
	cr := rm.conn(connId)
	if cr == nil {
		return nil
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	rooms := make([]string, 0, len(cr.rooms))
	for roomId := range cr.rooms {
		rooms = append(rooms, roomId)
	}

	return rooms
}

func (rm *RoomMembership) RoomCount() int {
	return int(rm.numRooms.Load())
}
