package chathub

import (
	"context"
	"errors"
	"sync"
	"time"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/presence"
	"pinchat/backend/internal/protocol"
	"pinchat/backend/internal/storage"

	"go.uber.org/zap"
)

// ManagerService is the event router. Its Run loop serializes connection
// registration, teardown and inbound events; persistence runs in tracked
// background goroutines so broadcasts never wait on the database.
type ManagerService struct {
	// Channels
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Incoming

	Storage  storage.Storage
	Presence *presence.Registry
	Groups   *Groups
	Log      *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	pending   sync.WaitGroup

	// lastSeen writes for one user run strictly in the order they were queued.
	seenMu    sync.Mutex
	seenTails map[string]chan struct{}
}

// NewManagerService wires a hub around an injected presence registry.
func NewManagerService(s storage.Storage, reg *presence.Registry, log *zap.Logger) *ManagerService {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = presence.NewRegistry()
	}
	return &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Incoming, 64),
		Storage:      s,
		Presence:     reg,
		Groups:       NewGroups(log),
		Log:          log,
		done:         make(chan struct{}),
		seenTails:    make(map[string]chan struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled, then closes every
// connection.
func (m *ManagerService) Run(ctx context.Context) {
	m.Log.Info("chat hub started")
	defer func() {
		m.closeOnce.Do(func() { close(m.done) })
		m.Groups.CloseAll()
		m.Log.Info("chat hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-m.RegisterCh:
			m.Connect(c)
		case c := <-m.UnregisterCh:
			m.Disconnect(c)
		case in := <-m.IncomingCh:
			m.HandleEvent(in.Client, in.Event)
		}
	}
}

// Register hands a new connection to the Run loop.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister hands a dead connection to the Run loop. It never blocks once
// the hub has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Dispatch queues an inbound event for the Run loop.
func (m *ManagerService) Dispatch(c Client, ev protocol.Inbound) {
	select {
	case m.IncomingCh <- Incoming{Client: c, Event: ev}:
	case <-m.done:
	}
}

// Connect tracks c, joins it to its user's group and sends it the current
// online set.
func (m *ManagerService) Connect(c Client) {
	m.Groups.Add(c)
	m.Groups.SendTo(c, m.onlineSet())
	m.Log.Debug("client connected", zap.String("user_id", c.GetUserID()), zap.String("conn_id", c.GetConnID()))
}

// Disconnect runs the same release path as an explicit leave. Repeated calls
// for the same connection are harmless.
func (m *ManagerService) Disconnect(c Client) {
	if !m.Groups.Remove(c) {
		return
	}
	m.release(c)
	m.Log.Debug("client disconnected", zap.String("user_id", c.GetUserID()), zap.String("conn_id", c.GetConnID()))
}

// HandleEvent applies one inbound event on behalf of c. Malformed events are
// logged and dropped; they never tear down the connection.
func (m *ManagerService) HandleEvent(c Client, ev protocol.Inbound) {
	if ev == nil {
		return
	}
	if err := ev.Validate(); err != nil {
		m.drop(c, ev, err.Error())
		return
	}

	switch e := ev.(type) {
	case protocol.ComeOnline:
		if m.impersonates(c, e.UserID, ev) {
			return
		}
		m.comeOnline(c)
	case protocol.JoinSession:
		if m.impersonates(c, e.UserID, ev) {
			return
		}
		m.Groups.Join(c)
	case protocol.LeaveSession:
		if m.impersonates(c, e.UserID, ev) {
			return
		}
		m.Groups.Leave(c)
		m.release(c)
	case protocol.TypingChanged:
		m.Groups.Deliver(e.ReceiverID, protocol.PeerTyping{UserID: c.GetUserID(), IsTyping: e.IsTyping})
	case protocol.MarkRead:
		if e.ReceiverID != "" && m.impersonates(c, e.ReceiverID, ev) {
			return
		}
		m.markRead(c.GetUserID(), e.SenderID)
	case protocol.MessageReadAck:
		m.messageReadAck(c.GetUserID(), e)
	case protocol.QueryStatus:
		m.queryStatus(c, e)
	default:
		m.drop(c, ev, "unhandled event kind")
	}
}

// NotifyUser delivers ev to userID's group. Offline users are skipped
// silently; the REST history is the durable path.
func (m *ManagerService) NotifyUser(userID string, ev protocol.Outbound) int {
	return m.Groups.Deliver(userID, ev)
}

// IsOnline reports the registry state for userID.
func (m *ManagerService) IsOnline(userID string) bool {
	return m.Presence.IsOnline(userID)
}

// Drain waits for background persistence started so far.
func (m *ManagerService) Drain() {
	m.pending.Wait()
}

func (m *ManagerService) comeOnline(c Client) {
	userID := c.GetUserID()
	m.Presence.SetOnline(userID, c.GetConnID())
	m.Groups.Join(c)

	m.Groups.Broadcast(m.onlineSet(), "")
	m.Groups.Broadcast(protocol.PeerOnline{UserID: userID}, userID)

	m.persistLastSeen("clear lastSeen", userID, nil)
}

// release takes the user offline if c still owns the presence entry. A
// superseded connection changes nothing; an already-offline user only gets
// a fresh lastSeen.
func (m *ManagerService) release(c Client) {
	userID := c.GetUserID()
	stamp, wentOffline := m.Presence.Release(userID, c.GetConnID())
	if stamp.IsZero() {
		return
	}

	if wentOffline {
		m.Groups.Broadcast(m.onlineSet(), "")
		m.Groups.Broadcast(protocol.PeerOffline{UserID: userID, LastSeen: stamp}, userID)
	}

	m.persistLastSeen("stamp lastSeen", userID, &stamp)
}

func (m *ManagerService) markRead(readerID, senderID string) {
	m.background("mark conversation read", readerID, func(ctx context.Context) error {
		_, err := m.Storage.MarkConversationRead(ctx, senderID, readerID)
		return err
	})
	m.Groups.Deliver(senderID, protocol.ReadReceiptsUpdated{ReaderID: readerID})
}

// messageReadAck flips one message read on behalf of its receiver. An ack
// for a message the reader did not receive from e.SenderID is dropped; a
// store failure still forwards the notice.
func (m *ManagerService) messageReadAck(readerID string, e protocol.MessageReadAck) {
	ack := protocol.MessageAcked{MessageID: e.MessageID}
	if m.Storage == nil {
		m.Groups.Deliver(e.SenderID, ack)
		return
	}
	m.background("mark message read", readerID, func(ctx context.Context) error {
		err := m.Storage.MarkMessageRead(ctx, e.MessageID, e.SenderID, readerID)
		if errors.Is(err, storage.ErrNotFound) {
			m.Log.Warn("dropping read ack for a message the reader did not receive",
				zap.String("user_id", readerID),
				zap.String("message_id", e.MessageID),
				zap.String("sender_id", e.SenderID),
			)
			return nil
		}
		m.Groups.Deliver(e.SenderID, ack)
		return err
	})
}

// queryStatus answers from memory when possible and falls back to the
// persisted user record.
func (m *ManagerService) queryStatus(c Client, e protocol.QueryStatus) {
	reply := protocol.StatusReply{RequestID: e.RequestID, UserID: e.UserID}
	if m.Presence.IsOnline(e.UserID) {
		reply.IsOnline = true
		m.Groups.SendTo(c, reply)
		return
	}
	if ts, ok := m.Presence.LastSeen(e.UserID); ok {
		reply.LastSeen = &ts
		m.Groups.SendTo(c, reply)
		return
	}
	if m.Storage == nil {
		m.Groups.SendTo(c, reply)
		return
	}

	m.background("lookup lastSeen", e.UserID, func(ctx context.Context) error {
		ts, err := m.Storage.GetLastSeen(ctx, e.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.Groups.SendTo(c, reply)
			return err
		}
		reply.LastSeen = ts
		m.Groups.SendTo(c, reply)
		return nil
	})
}

func (m *ManagerService) onlineSet() protocol.OnlineSetChanged {
	return protocol.OnlineSetChanged{UserIDs: m.Presence.ListOnline()}
}

// impersonates reports (and logs) an event naming a user other than the
// connection's authenticated identity.
func (m *ManagerService) impersonates(c Client, userID string, ev protocol.Inbound) bool {
	if userID == c.GetUserID() {
		return false
	}
	m.drop(c, ev, "user id does not match connection identity")
	return true
}

func (m *ManagerService) drop(c Client, ev protocol.Inbound, reason string) {
	m.Log.Warn("dropping malformed event",
		zap.String("user_id", c.GetUserID()),
		zap.String("conn_id", c.GetConnID()),
		zap.String("event", string(ev.Kind())),
		zap.String("reason", reason),
	)
}

// persistLastSeen queues a lastSeen write behind any earlier write for the
// same user, so the stored value always matches the latest transition.
func (m *ManagerService) persistLastSeen(op, userID string, ts *time.Time) {
	if m.Storage == nil {
		return
	}
	m.seenMu.Lock()
	prev := m.seenTails[userID]
	done := make(chan struct{})
	m.seenTails[userID] = done
	m.seenMu.Unlock()

	m.backgroundAfter(prev, op, userID, func(ctx context.Context) error {
		defer func() {
			close(done)
			m.seenMu.Lock()
			if m.seenTails[userID] == done {
				delete(m.seenTails, userID)
			}
			m.seenMu.Unlock()
		}()
		return m.Storage.SetLastSeen(ctx, userID, ts)
	})
}

// background runs fn with its own timeout. Errors are logged and swallowed.
func (m *ManagerService) background(op, userID string, fn func(ctx context.Context) error) {
	m.backgroundAfter(nil, op, userID, fn)
}

// backgroundAfter is background that first waits for prev to close. The
// timeout starts once prev is done.
func (m *ManagerService) backgroundAfter(prev <-chan struct{}, op, userID string, fn func(ctx context.Context) error) {
	if m.Storage == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.BackgroundOpTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			m.Log.Warn("background persistence failed",
				zap.String("op", op),
				zap.String("user_id", userID),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
	}()
}
