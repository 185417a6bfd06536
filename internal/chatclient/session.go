package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/models"
	"pinchat/backend/internal/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrPersistenceFailure means a send was not stored; the optimistic entry
	// has been rolled back.
	ErrPersistenceFailure = errors.New("message could not be saved")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("chat session closed")
	// ErrNotReady is returned by Send before history has loaded.
	ErrNotReady = errors.New("chat session is still loading")
)

// History is the durable message path.
type History interface {
	ListMessages(ctx context.Context, peerID string) ([]models.Message, error)
	SendMessage(ctx context.Context, receiverID, ciphertext string) (*models.Message, error)
}

// Emitter sends events over the live channel.
type Emitter interface {
	Emit(ev protocol.Inbound) error
}

// Codec encodes and decodes message bodies.
type Codec interface {
	Encode(plaintext string) (string, error)
	Decode(ciphertext string) (string, error)
}

// State is the session lifecycle.
type State int

const (
	StateLoading State = iota
	StateIdle          // ready, nothing in flight
	StateSending       // ready, at least one pending entry
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is one rendered message.
type Entry struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	CreatedAt  time.Time
	Read       bool
	// Pending entries carry a temporary ID until the server confirms them.
	Pending bool
	// Unreadable entries failed to decode; Text is empty.
	Unreadable bool
}

// Options tunes a Session. Zero values pick the defaults.
type Options struct {
	QuietPeriod time.Duration
	Now         func() time.Time
	Log         *zap.Logger
}

// Session is the client state of one open conversation.
type Session struct {
	SelfID string
	PeerID string

	history History
	live    Emitter
	codec   Codec
	quiet   time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	loaded  bool
	outbox  []protocol.Inbound
	closed  bool
	entries []Entry
	pending map[string]struct{}

	typing      bool
	typingTimer *time.Timer
	typingGen   uint64

	connected    bool
	peerTyping   bool
	peerOnline   bool
	peerLastSeen *time.Time
	statusReqID  string

	// emitMu orders live writes without holding mu across them.
	emitMu sync.Mutex
}

func NewSession(selfID, peerID string, history History, live Emitter, codec Codec, opts Options) *Session {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = config.TypingQuietPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Session{
		SelfID:    selfID,
		PeerID:    peerID,
		history:   history,
		live:      live,
		codec:     codec,
		quiet:     opts.QuietPeriod,
		now:       opts.Now,
		log:       opts.Log.With(zap.String("peer_id", peerID)),
		pending:   make(map[string]struct{}),
		connected: live != nil,
	}
}

// Open loads the history and announces the session. On a history error the
// session stays in StateLoading and Open may be called again.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	records, err := s.history.ListMessages(ctx, s.PeerID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return ErrSessionClosed
	}

	for _, m := range records {
		if !m.Between(s.SelfID, s.PeerID) {
			continue
		}
		s.upsert(s.decode(m))
	}
	s.loaded = true

	s.emit(protocol.JoinSession{UserID: s.SelfID})
	s.statusReqID = uuid.New().String()
	s.emit(protocol.QueryStatus{RequestID: s.statusReqID, UserID: s.PeerID})
	if s.markPeerMessagesRead() {
		s.emit(protocol.MarkRead{SenderID: s.PeerID, ReceiverID: s.SelfID})
	}
	return nil
}

// Send shows text immediately as a pending entry, then persists it. On
// success the pending entry is replaced by the confirmed record; on failure
// it is removed and the error wraps ErrPersistenceFailure.
func (s *Session) Send(ctx context.Context, text string) (Entry, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return Entry{}, ErrSessionClosed
	case !s.loaded:
		s.mu.Unlock()
		return Entry{}, ErrNotReady
	}
	tempID := uuid.New().String()
	s.upsert(Entry{
		ID:         tempID,
		SenderID:   s.SelfID,
		ReceiverID: s.PeerID,
		Text:       text,
		CreatedAt:  s.now().UTC(),
		Pending:    true,
	})
	s.pending[tempID] = struct{}{}
	s.stopTyping()
	s.unlock()

	msg, err := s.persist(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(tempID)
	delete(s.pending, tempID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	confirmed := s.decode(*msg)
	if !s.closed {
		s.upsert(confirmed)
	}
	return confirmed, nil
}

func (s *Session) persist(ctx context.Context, text string) (*models.Message, error) {
	ciphertext, err := s.codec.Encode(text)
	if err != nil {
		return nil, err
	}
	return s.history.SendMessage(ctx, s.PeerID, ciphertext)
}

// Keystroke reports local typing. The first keystroke of a burst emits
// typingChanged(true); the quiet-period timer is re-armed on every call and
// its expiry emits exactly one typingChanged(false).
func (s *Session) Keystroke() {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || !s.loaded {
		return
	}
	if !s.typing {
		s.typing = true
		s.emit(protocol.TypingChanged{ReceiverID: s.PeerID, IsTyping: true})
	}

	s.typingGen++
	gen := s.typingGen
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.quiet, func() { s.typingExpired(gen) })
}

func (s *Session) typingExpired(gen uint64) {
	s.mu.Lock()
	defer s.unlock()
	// A keystroke, send or close since arming makes this timer stale.
	if gen != s.typingGen || !s.typing || s.closed {
		return
	}
	s.typing = false
	s.typingTimer = nil
	s.emit(protocol.TypingChanged{ReceiverID: s.PeerID, IsTyping: false})
}

// stopTyping must be called with mu held.
func (s *Session) stopTyping() {
	s.typingGen++
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.typing {
		s.typing = false
		s.emit(protocol.TypingChanged{ReceiverID: s.PeerID, IsTyping: false})
	}
}

// HandleEvent merges one live event into the session.
func (s *Session) HandleEvent(ev protocol.Outbound) {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return
	}

	switch e := ev.(type) {
	case protocol.MessageArrived:
		if !e.Message.Between(s.SelfID, s.PeerID) {
			return
		}
		entry := s.decode(e.Message)
		fromPeer := entry.SenderID == s.PeerID
		if fromPeer && s.loaded {
			entry.Read = true
		}
		s.upsert(entry)
		if fromPeer && s.loaded {
			s.emit(protocol.MarkRead{SenderID: s.PeerID, ReceiverID: s.SelfID})
		}
	case protocol.MessageDeleted:
		s.remove(e.MessageID)
	case protocol.ReadReceiptsUpdated:
		if e.ReaderID != s.PeerID {
			return
		}
		for i := range s.entries {
			if s.entries[i].SenderID == s.SelfID && !s.entries[i].Pending {
				s.entries[i].Read = true
			}
		}
	case protocol.MessageAcked:
		if i := s.index(e.MessageID); i >= 0 && s.entries[i].SenderID == s.SelfID {
			s.entries[i].Read = true
		}
	case protocol.PeerTyping:
		if e.UserID == s.PeerID {
			s.peerTyping = e.IsTyping
		}
	case protocol.PeerOnline:
		if e.UserID == s.PeerID {
			s.setPeerOnline(true, nil)
		}
	case protocol.PeerOffline:
		if e.UserID == s.PeerID {
			ts := e.LastSeen
			s.setPeerOnline(false, &ts)
		}
	case protocol.OnlineSetChanged:
		online := false
		for _, id := range e.UserIDs {
			if id == s.PeerID {
				online = true
				break
			}
		}
		if online != s.peerOnline {
			s.setPeerOnline(online, s.peerLastSeen)
		}
	case protocol.StatusReply:
		if e.UserID != s.PeerID {
			return
		}
		if e.RequestID != "" && e.RequestID != s.statusReqID {
			return
		}
		s.setPeerOnline(e.IsOnline, e.LastSeen)
	}
}

func (s *Session) setPeerOnline(online bool, lastSeen *time.Time) {
	s.peerOnline = online
	if online {
		s.peerLastSeen = nil
		return
	}
	s.peerTyping = false
	if lastSeen != nil {
		s.peerLastSeen = lastSeen
	}
}

// SetConnected records whether the live channel is up.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	if !connected {
		s.peerTyping = false
	}
}

// Close cancels the typing timer, leaves the session and ignores later
// events. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return
	}
	s.stopTyping()
	s.emit(protocol.LeaveSession{UserID: s.SelfID})
	s.closed = true
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case !s.loaded:
		return StateLoading
	case len(s.pending) > 0:
		return StateSending
	default:
		return StateIdle
	}
}

// Messages returns a copy of the ordered conversation.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// PeerTyping reports whether the peer is typing.
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerTyping
}

// PeerPresence returns the peer's online flag and last known lastSeen.
func (s *Session) PeerPresence() (bool, *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerOnline, s.peerLastSeen
}

// PresenceLabel renders the peer's status line.
func (s *Session) PresenceLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PresenceLabel(s.connected, s.peerOnline, s.peerLastSeen, s.now())
}

func (s *Session) decode(m models.Message) Entry {
	entry := Entry{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		CreatedAt:  m.CreatedAt,
		Read:       m.Read,
	}
	text, err := s.codec.Decode(m.Content)
	if err != nil {
		s.log.Debug("unreadable message", zap.String("message_id", m.ID), zap.Error(err))
		entry.Unreadable = true
		return entry
	}
	entry.Text = text
	return entry
}

// upsert inserts or replaces e by ID, keeping entries ordered by CreatedAt
// then ID.
func (s *Session) upsert(e Entry) {
	if i := s.index(e.ID); i >= 0 {
		// A live echo may already have been marked read locally.
		e.Read = e.Read || s.entries[i].Read
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		cur := s.entries[i]
		if cur.CreatedAt.Equal(e.CreatedAt) {
			return cur.ID > e.ID
		}
		return cur.CreatedAt.After(e.CreatedAt)
	})
	s.entries = append(s.entries, Entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

func (s *Session) remove(id string) {
	if i := s.index(id); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

func (s *Session) index(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// markPeerMessagesRead flips unread peer messages locally and reports
// whether any were unread.
func (s *Session) markPeerMessagesRead() bool {
	found := false
	for i := range s.entries {
		if s.entries[i].SenderID == s.PeerID && !s.entries[i].Read {
			s.entries[i].Read = true
			found = true
		}
	}
	return found
}

// emit queues ev; it must be called with mu held. The write happens in
// unlock so a slow socket never blocks readers of the session.
func (s *Session) emit(ev protocol.Inbound) {
	if s.live == nil {
		return
	}
	s.outbox = append(s.outbox, ev)
}

// unlock releases mu and writes the queued events in order. emitMu is taken
// before mu is released so concurrent callers keep their emit order.
func (s *Session) unlock() {
	out := s.outbox
	s.outbox = nil
	if len(out) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	// A missing or broken live channel only costs low-latency hints.
	for _, ev := range out {
		if err := s.live.Emit(ev); err != nil {
			s.log.Warn("live emit failed", zap.String("event", string(ev.Kind())), zap.Error(err))
		}
	}
}
