package server

func (cs *ChatServer) dispatch(c *Client, msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		cs.handleJoin(c, msg)
	case msg.Leave != nil:
		cs.handleLeave(c, msg)
	case msg.Send != nil:
		cs.relayMessage(c, msg, msg.Send.ChatId, MessageCreatedEvent(msg.Send))
	case msg.Edit != nil:
		cs.relayMessage(c, msg, msg.Edit.ChatId, MessageEditedEvent(msg.Edit))
	case msg.Delete != nil:
		cs.relayMessage(c, msg, msg.Delete.RoomId, MessageDeletedEvent(msg.Delete.MessageId, msg.Delete.RoomId))
	case msg.TypingStart != nil:
		cs.handleTypingStart(c, msg)
	case msg.TypingStop != nil:
		cs.typing.Stop(msg.TypingStop.RoomId, c.user.Id)
	}
}

func (cs *ChatServer) handleJoin(c *Client, msg *ClientMessage) {
	roomId := msg.Join.RoomId

	added, err := cs.rooms.Join(c.id, roomId)
	if err != nil {
		cs.log.Printf("join %q from %q: %v", roomId, c.id, err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	if added {
		cs.log.Printf("connection %q of %q joined room %q", c.id, c.user.Id, roomId)
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{
		"room_id": roomId,
		"members": len(cs.rooms.Members(roomId)),
	}))
}

func (cs *ChatServer) handleLeave(c *Client, msg *ClientMessage) {
	roomId := msg.Leave.RoomId

	if cs.rooms.Leave(c.id, roomId) {
		cs.typing.StopOrigin(roomId, c.user.Id, c.id)
		cs.log.Printf("connection %q of %q left room %q", c.id, c.user.Id, roomId)
	}

	c.queueMessage(NoErrOK(msg.Id, nil))
}

// relayMessage forwards a message lifecycle event to the other members of
// roomId. The message has already been committed by the persistence service.
func (cs *ChatServer) relayMessage(c *Client, msg *ClientMessage, roomId string, event *ServerMessage) {
	if !cs.rooms.IsMember(c.id, roomId) {
		c.queueMessage(ErrNotJoined(msg.Id))
		return
	}

	n := cs.router.Relay(roomId, event, c.id)
	cs.stats.Incr("NumRelayedEvents")
	cs.log.Printf("relayed event from %q to %d connections in room %q", c.id, n, roomId)

	c.queueMessage(NoErrAccepted(msg.Id))
}

func (cs *ChatServer) handleTypingStart(c *Client, msg *ClientMessage) {
	roomId := msg.TypingStart.RoomId

	if !cs.rooms.IsMember(c.id, roomId) {
		c.queueMessage(ErrNotJoined(msg.Id))
		return
	}

	cs.typing.Start(roomId, c.user, c.id)
}
