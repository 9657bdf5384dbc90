package server

import (
	"log"
)

// Directory lists every live connection.
type Directory interface {
	Connections() []Subscriber
}

// Router fans events out to live connections. Delivery is best effort: a
// connection whose send queue is full misses the event.
type Router struct {
	log   *log.Logger
	rooms *RoomMembership
	dir   Directory
}

func NewRouter(logger *log.Logger, rooms *RoomMembership, dir Directory) *Router {
	return &Router{
		log:   logger,
		rooms: rooms,
		dir:   dir,
	}
}

// Relay delivers msg to every member of roomId except excludeConnId and
// returns the number of connections it was queued for.
func (r *Router) Relay(roomId string, msg *ServerMessage, excludeConnId string) int {
	return r.deliver(r.rooms.Members(roomId), msg, excludeConnId)
}

// Broadcast delivers msg to every live connection except excludeConnId.
func (r *Router) Broadcast(msg *ServerMessage, excludeConnId string) int {
	return r.deliver(r.dir.Connections(), msg, excludeConnId)
}

func (r *Router) deliver(subs []Subscriber, msg *ServerMessage, excludeConnId string) int {
	n := 0
	for _, sub := range subs {
		if sub.ConnId() == excludeConnId {
			continue
		}

		if sub.Deliver(msg) {
			n++
		} else {
			r.log.Printf("dropped event for connection %q", sub.ConnId())
		}
	}

	return n
}
