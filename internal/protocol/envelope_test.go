package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"pinchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundKinds(t *testing.T) {
	cases := []struct {
		frame string
		want  Inbound
	}{
		{`{"event":"comeOnline","data":{"userId":"u1"}}`, ComeOnline{UserID: "u1"}},
		{`{"event":"joinSession","data":{"userId":"u1"}}`, JoinSession{UserID: "u1"}},
		{`{"event":"leaveSession","data":{"userId":"u1"}}`, LeaveSession{UserID: "u1"}},
		{`{"event":"typingChanged","data":{"receiverId":"u2","isTyping":true}}`, TypingChanged{ReceiverID: "u2", IsTyping: true}},
		{`{"event":"markRead","data":{"senderId":"u2","receiverId":"u1"}}`, MarkRead{SenderID: "u2", ReceiverID: "u1"}},
		{`{"event":"messageReadAck","data":{"messageId":"m1","senderId":"u2"}}`, MessageReadAck{MessageID: "m1", SenderID: "u2"}},
		{`{"event":"queryStatus","data":{"requestId":"r1","userId":"u2"}}`, QueryStatus{RequestID: "r1", UserID: "u2"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.want.Kind()), func(t *testing.T) {
			got, err := DecodeInbound([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	malformed := []string{
		``,
		`not json`,
		`{"data":{"userId":"u1"}}`,
		`{"event":"comeOnline"}`,
		`{"event":"comeOnline","data":{"userId":""}}`,
		`{"event":"comeOnline","data":{"userId":42}}`,
		`{"event":"typingChanged","data":{"isTyping":true}}`,
		`{"event":"markRead","data":{"receiverId":"u1"}}`,
		`{"event":"messageReadAck","data":{"senderId":"u2"}}`,
		`{"event":"messageReadAck","data":{"messageId":"m1"}}`,
	}
	for _, frame := range malformed {
		_, err := DecodeInbound([]byte(frame))
		assert.ErrorIs(t, err, ErrMalformedEvent, frame)
	}

	_, err := DecodeInbound([]byte(`{"event":"deleteEverything","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	// Server-only events are not accepted from clients.
	_, err = DecodeInbound([]byte(`{"event":"peerOnline","data":{"userId":"u1"}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestOutboundRoundTrip(t *testing.T) {
	seen := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	events := []Outbound{
		OnlineSetChanged{UserIDs: []string{"u1", "u2"}},
		PeerOnline{UserID: "u1"},
		PeerOffline{UserID: "u2", LastSeen: seen},
		PeerTyping{UserID: "u1", IsTyping: true},
		ReadReceiptsUpdated{ReaderID: "u2"},
		MessageAcked{MessageID: "m1"},
		MessageArrived{Message: models.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "ab:cd", CreatedAt: seen}},
		MessageDeleted{MessageID: "m1"},
		StatusReply{RequestID: "r1", UserID: "u2", LastSeen: &seen},
	}

	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			raw, err := Encode(ev)
			require.NoError(t, err)

			got, err := DecodeOutbound(raw)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
		})
	}
}

func TestEncodeEnvelopeShape(t *testing.T) {
	raw, err := Encode(TypingChanged{ReceiverID: "u2", IsTyping: false})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "typingChanged", generic["event"])
	assert.Equal(t, map[string]any{"receiverId": "u2", "isTyping": false}, generic["data"])

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestMessageReadAckDirections(t *testing.T) {
	// Same wire name, different payload per direction.
	in, err := DecodeInbound([]byte(`{"event":"messageReadAck","data":{"messageId":"m1","senderId":"u1"}}`))
	require.NoError(t, err)
	assert.IsType(t, MessageReadAck{}, in)

	out, err := DecodeOutbound([]byte(`{"event":"messageReadAck","data":{"messageId":"m1"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageAcked{MessageID: "m1"}, out)
}
