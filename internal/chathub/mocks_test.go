package chathub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pinchat/backend/internal/models"
	"pinchat/backend/internal/protocol"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) SetLastSeen(ctx context.Context, userID string, ts *time.Time) error {
	args := m.Called(ctx, userID, ts)
	return args.Error(0)
}

func (m *MockStorage) GetLastSeen(ctx context.Context, userID string) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockStorage) AppendMessage(ctx context.Context, senderID, receiverID, ciphertext string) (*models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) ListMessagesBetween(ctx context.Context, userA, userB string) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkMessageRead(ctx context.Context, messageID, senderID, readerID string) error {
	args := m.Called(ctx, messageID, senderID, readerID)
	return args.Error(0)
}

func (m *MockStorage) MarkConversationRead(ctx context.Context, senderID, readerID string) (int64, error) {
	args := m.Called(ctx, senderID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error) {
	args := m.Called(ctx, messageID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// MockClient is an in-memory chathub.Client.
type MockClient struct {
	userID string
	connID string
	send   chan protocol.Outbound

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID, connID string) *MockClient {
	return &MockClient{
		userID: userID,
		connID: connID,
		send:   make(chan protocol.Outbound, 32), // buffered so the hub never drops in tests
	}
}

func (c *MockClient) GetUserID() string                        { return c.userID }
func (c *MockClient) GetConnID() string                        { return c.connID }
func (c *MockClient) GetSendChannel() chan<- protocol.Outbound { return c.send }
func (c *MockClient) Run()                                     {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("MockClient closed twice")
	}
	c.closed = true
	close(c.send)
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainMessages returns everything queued so far without blocking.
func (c *MockClient) DrainMessages() []protocol.Outbound {
	var out []protocol.Outbound
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Next waits briefly for the next event.
func (c *MockClient) Next(t *testing.T) protocol.Outbound {
	t.Helper()
	select {
	case ev, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event delivered to %s/%s", c.userID, c.connID)
		return nil
	}
}

// ofKind filters events by wire kind.
func ofKind(events []protocol.Outbound, kind protocol.Kind) []protocol.Outbound {
	var out []protocol.Outbound
	for _, ev := range events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}
