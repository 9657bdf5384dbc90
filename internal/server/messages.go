package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/duochat/internal/types"
)

var errMalformedMessage = errors.New("malformed message")

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an inbound event. Exactly one of the event fields is set.
type ClientMessage struct {
	BaseMessage
	Join        *Join          `json:"join,omitempty"`
	Leave       *Leave         `json:"leave,omitempty"`
	Send        *types.Message `json:"send,omitempty"`
	Edit        *types.Message `json:"edit,omitempty"`
	Delete      *Delete        `json:"delete,omitempty"`
	TypingStart *Typing        `json:"typing_start,omitempty"`
	TypingStop  *Typing        `json:"typing_stop,omitempty"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Delete struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type Typing struct {
	RoomId string `json:"room_id"`
}

// validate reports whether msg carries exactly one event with the
// identifiers that event needs.
func (msg *ClientMessage) validate() error {
	n := 0
	valid := true
	check := func(set bool, ok func() bool) {
		if set {
			n++
			valid = valid && ok()
		}
	}

	check(msg.Join != nil, func() bool { return msg.Join.RoomId != "" })
	check(msg.Leave != nil, func() bool { return msg.Leave.RoomId != "" })
	check(msg.Send != nil, func() bool { return msg.Send.Id != "" && msg.Send.ChatId != "" })
	check(msg.Edit != nil, func() bool { return msg.Edit.Id != "" && msg.Edit.ChatId != "" })
	check(msg.Delete != nil, func() bool { return msg.Delete.MessageId != "" && msg.Delete.RoomId != "" })
	check(msg.TypingStart != nil, func() bool { return msg.TypingStart.RoomId != "" })
	check(msg.TypingStop != nil, func() bool { return msg.TypingStop.RoomId != "" })

	if n != 1 || !valid {
		return errMalformedMessage
	}

	return nil
}

type ServerMessage struct {
	BaseMessage
	Response       *Response       `json:"response,omitempty"`
	MessageCreated *types.Message  `json:"message_created,omitempty"`
	MessageEdited  *types.Message  `json:"message_edited,omitempty"`
	MessageDeleted *MessageDeleted `json:"message_deleted,omitempty"`
	Notification   *Notification   `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type MessageDeleted struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type Notification struct {
	TypingStarted   *TypingNotice   `json:"typing_started,omitempty"`
	TypingStopped   *TypingNotice   `json:"typing_stopped,omitempty"`
	PresenceOffline *PresenceNotice `json:"presence_offline,omitempty"`
}

type TypingNotice struct {
	RoomId   string `json:"room_id"`
	UserId   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

type PresenceNotice struct {
	UserId   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

func MessageCreatedEvent(m *types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage:    BaseMessage{Timestamp: Now()},
		MessageCreated: m,
	}
}

func MessageEditedEvent(m *types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage:   BaseMessage{Timestamp: Now()},
		MessageEdited: m,
	}
}

func MessageDeletedEvent(messageId, roomId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		MessageDeleted: &MessageDeleted{
			MessageId: messageId,
			RoomId:    roomId,
		},
	}
}

func TypingStartedEvent(roomId string, user types.User) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			TypingStarted: &TypingNotice{
				RoomId:   roomId,
				UserId:   user.Id,
				Username: user.Username,
			},
		},
	}
}

func TypingStoppedEvent(roomId, userId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			TypingStopped: &TypingNotice{
				RoomId: roomId,
				UserId: userId,
			},
		},
	}
}

func PresenceOfflineEvent(userId string, lastSeen time.Time) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			PresenceOffline: &PresenceNotice{
				UserId:   userId,
				LastSeen: lastSeen,
			},
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrNotJoined(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "room not joined",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
