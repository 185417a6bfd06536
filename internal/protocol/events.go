// Package protocol defines the closed set of events carried over the live
// channel. Every frame is a JSON envelope {"event": <kind>, "data": {...}}.
package protocol

import (
	"fmt"
	"time"

	"pinchat/backend/internal/models"
)

// Kind names an event on the wire.
type Kind string

// Client -> server.
const (
	KindComeOnline    Kind = "comeOnline"
	KindJoinSession   Kind = "joinSession"
	KindLeaveSession  Kind = "leaveSession"
	KindTypingChanged Kind = "typingChanged"
	KindMarkRead      Kind = "markRead"
	KindQueryStatus   Kind = "queryStatus"
)

// Server -> client.
const (
	KindOnlineSetChanged    Kind = "onlineSetChanged"
	KindPeerOnline          Kind = "peerOnline"
	KindPeerOffline         Kind = "peerOffline"
	KindPeerTyping          Kind = "peerTyping"
	KindReadReceiptsUpdated Kind = "readReceiptsUpdated"
	KindMessageArrived      Kind = "messageArrived"
	KindMessageDeleted      Kind = "messageDeleted"
	KindStatusReply         Kind = "statusReply"
)

// KindMessageReadAck travels in both directions with different payloads.
const KindMessageReadAck Kind = "messageReadAck"

// Event is anything that can be framed on the live channel.
type Event interface {
	Kind() Kind
}

// Inbound is an event a client sends to the server.
type Inbound interface {
	Event
	Validate() error
	inbound()
}

// Outbound is an event the server sends to a client.
type Outbound interface {
	Event
	outbound()
}

// ComeOnline announces the connection's user as present.
type ComeOnline struct {
	UserID string `json:"userId"`
}

// JoinSession joins the user's group without re-announcing presence.
type JoinSession struct {
	UserID string `json:"userId"`
}

// LeaveSession leaves the user's group and takes the user offline.
type LeaveSession struct {
	UserID string `json:"userId"`
}

// TypingChanged is forwarded to ReceiverID as PeerTyping.
type TypingChanged struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// MarkRead says ReceiverID has read everything SenderID sent them.
type MarkRead struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
}

// MessageReadAck says one message from SenderID has been read.
type MessageReadAck struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// QueryStatus asks for a user's presence; answered with StatusReply.
type QueryStatus struct {
	RequestID string `json:"requestId,omitempty"`
	UserID    string `json:"userId"`
}

// OnlineSetChanged carries the complete set of online users.
type OnlineSetChanged struct {
	UserIDs []string `json:"userIds"`
}

// PeerOnline tells everyone else that UserID came online.
type PeerOnline struct {
	UserID string `json:"userId"`
}

// PeerOffline tells everyone that UserID went offline at LastSeen.
type PeerOffline struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// PeerTyping is the forwarded typing notice.
type PeerTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadReceiptsUpdated tells a sender that ReaderID read their messages.
type ReadReceiptsUpdated struct {
	ReaderID string `json:"readerId"`
}

// MessageAcked tells a sender that one message was read.
type MessageAcked struct {
	MessageID string `json:"messageId"`
}

// MessageArrived echoes a freshly persisted message (content is ciphertext).
type MessageArrived struct {
	Message models.Message `json:"message"`
}

// MessageDeleted tells participants a message was removed.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

// StatusReply answers QueryStatus on the asking connection only.
type StatusReply struct {
	RequestID string     `json:"requestId,omitempty"`
	UserID    string     `json:"userId"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen"`
}

func (ComeOnline) Kind() Kind     { return KindComeOnline }
func (JoinSession) Kind() Kind    { return KindJoinSession }
func (LeaveSession) Kind() Kind   { return KindLeaveSession }
func (TypingChanged) Kind() Kind  { return KindTypingChanged }
func (MarkRead) Kind() Kind       { return KindMarkRead }
func (MessageReadAck) Kind() Kind { return KindMessageReadAck }
func (QueryStatus) Kind() Kind    { return KindQueryStatus }

func (OnlineSetChanged) Kind() Kind    { return KindOnlineSetChanged }
func (PeerOnline) Kind() Kind          { return KindPeerOnline }
func (PeerOffline) Kind() Kind         { return KindPeerOffline }
func (PeerTyping) Kind() Kind          { return KindPeerTyping }
func (ReadReceiptsUpdated) Kind() Kind { return KindReadReceiptsUpdated }
func (MessageAcked) Kind() Kind        { return KindMessageReadAck }
func (MessageArrived) Kind() Kind      { return KindMessageArrived }
func (MessageDeleted) Kind() Kind      { return KindMessageDeleted }
func (StatusReply) Kind() Kind         { return KindStatusReply }

func (ComeOnline) inbound()     {}
func (JoinSession) inbound()    {}
func (LeaveSession) inbound()   {}
func (TypingChanged) inbound()  {}
func (MarkRead) inbound()       {}
func (MessageReadAck) inbound() {}
func (QueryStatus) inbound()    {}

func (OnlineSetChanged) outbound()    {}
func (PeerOnline) outbound()          {}
func (PeerOffline) outbound()         {}
func (PeerTyping) outbound()          {}
func (ReadReceiptsUpdated) outbound() {}
func (MessageAcked) outbound()        {}
func (MessageArrived) outbound()      {}
func (MessageDeleted) outbound()      {}
func (StatusReply) outbound()         {}

func (e ComeOnline) Validate() error   { return required("userId", e.UserID) }
func (e JoinSession) Validate() error  { return required("userId", e.UserID) }
func (e LeaveSession) Validate() error { return required("userId", e.UserID) }
func (e TypingChanged) Validate() error {
	return required("receiverId", e.ReceiverID)
}
func (e MarkRead) Validate() error { return required("senderId", e.SenderID) }
func (e MessageReadAck) Validate() error {
	if err := required("messageId", e.MessageID); err != nil {
		return err
	}
	return required("senderId", e.SenderID)
}
func (e QueryStatus) Validate() error { return required("userId", e.UserID) }

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrMalformedEvent, field)
	}
	return nil
}
