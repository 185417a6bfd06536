package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent covers unparsable frames and missing required fields.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownEvent is returned for an event kind outside the protocol.
	ErrUnknownEvent = errors.New("unknown event")
)

type envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outgoingEnvelope struct {
	Event Kind  `json:"event"`
	Data  Event `json:"data"`
}

// Encode frames ev as a JSON envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	return json.Marshal(outgoingEnvelope{Event: ev.Kind(), Data: ev})
}

// DecodeInbound parses a client frame and validates its payload.
func DecodeInbound(raw []byte) (Inbound, error) {
	env, err := split(raw)
	if err != nil {
		return nil, err
	}

	var ev Inbound
	switch env.Event {
	case KindComeOnline:
		ev, err = unmarshalAs[ComeOnline](env.Data)
	case KindJoinSession:
		ev, err = unmarshalAs[JoinSession](env.Data)
	case KindLeaveSession:
		ev, err = unmarshalAs[LeaveSession](env.Data)
	case KindTypingChanged:
		ev, err = unmarshalAs[TypingChanged](env.Data)
	case KindMarkRead:
		ev, err = unmarshalAs[MarkRead](env.Data)
	case KindMessageReadAck:
		ev, err = unmarshalAs[MessageReadAck](env.Data)
	case KindQueryStatus:
		ev, err = unmarshalAs[QueryStatus](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeOutbound parses a server frame.
func DecodeOutbound(raw []byte) (Outbound, error) {
	env, err := split(raw)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case KindOnlineSetChanged:
		return unmarshalAs[OnlineSetChanged](env.Data)
	case KindPeerOnline:
		return unmarshalAs[PeerOnline](env.Data)
	case KindPeerOffline:
		return unmarshalAs[PeerOffline](env.Data)
	case KindPeerTyping:
		return unmarshalAs[PeerTyping](env.Data)
	case KindReadReceiptsUpdated:
		return unmarshalAs[ReadReceiptsUpdated](env.Data)
	case KindMessageReadAck:
		return unmarshalAs[MessageAcked](env.Data)
	case KindMessageArrived:
		return unmarshalAs[MessageArrived](env.Data)
	case KindMessageDeleted:
		return unmarshalAs[MessageDeleted](env.Data)
	case KindStatusReply:
		return unmarshalAs[StatusReply](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func split(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return env, nil
}

func unmarshalAs[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return out, nil
}
