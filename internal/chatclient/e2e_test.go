package chatclient_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"pinchat/backend/internal/api/handler"
	"pinchat/backend/internal/chatclient"
	"pinchat/backend/internal/chathub"
	"pinchat/backend/internal/msgcrypto"
	"pinchat/backend/internal/presence"
	"pinchat/backend/internal/protocol"
	"pinchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type server struct {
	url   string
	auth  *handler.Authenticator
	hub   *chathub.ManagerService
	store *storage.Service
	codec *msgcrypto.Codec
}

func startServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := storage.NewStorageService(db, nil, zap.NewNop())
	require.NoError(t, store.AutoMigrate())

	codec, err := msgcrypto.NewCodec("shared-message-secret")
	require.NoError(t, err)

	hub := chathub.NewManagerService(store, presence.NewRegistry(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	auth := handler.NewAuthenticator("e2e-secret", "pinchat-test", time.Hour)
	router := gin.New()
	handler.NewHandler(hub, store, codec, auth, zap.NewNop()).Routes(router)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		hub.Drain()
	})
	return &server{url: srv.URL, auth: auth, hub: hub, store: store, codec: codec}
}

type participant struct {
	session *chatclient.Session
	live    *chatclient.LiveConn
	rest    *chatclient.RESTClient
}

// join connects userID, announces presence and opens the chat with peerID.
func (s *server) join(t *testing.T, userID, peerID string) *participant {
	t.Helper()
	token, err := s.auth.IssueToken(userID)
	require.NoError(t, err)

	rest := chatclient.NewRESTClient(s.url, token)
	live, err := chatclient.DialLive(s.url, token, zap.NewNop())
	require.NoError(t, err)

	session := chatclient.NewSession(userID, peerID, rest, live, s.codec, chatclient.Options{})
	live.OnEvent(session.HandleEvent)
	live.OnClose(func(error) { session.SetConnected(false) })
	live.Listen()

	require.NoError(t, live.Emit(protocol.ComeOnline{UserID: userID}))
	require.Eventually(t, func() bool { return s.hub.IsOnline(userID) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, session.Open(context.Background()))

	return &participant{session: session, live: live, rest: rest}
}

func TestEndToEndSendReadAndDisconnect(t *testing.T) {
	srv := startServer(t)
	a := srv.join(t, "u1", "u2")
	t.Cleanup(func() { a.live.Close() })
	b := srv.join(t, "u2", "u1")

	require.Eventually(t, func() bool {
		online, _ := a.session.PeerPresence()
		return online
	}, 2*time.Second, 10*time.Millisecond, "A sees B online")

	sent, err := a.session.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, sent.Pending)

	// B is viewing the chat: it decodes the live message and sends a receipt.
	require.Eventually(t, func() bool {
		msgs := b.session.Messages()
		return len(msgs) == 1 && msgs[0].Text == "hi"
	}, 2*time.Second, 10*time.Millisecond)

	// A's message shows as read within a round trip.
	require.Eventually(t, func() bool {
		msgs := a.session.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID && msgs[0].Read
	}, 2*time.Second, 10*time.Millisecond)

	// And the store flipped read after the receipt.
	require.Eventually(t, func() bool {
		history, err := srv.store.ListMessagesBetween(context.Background(), "u1", "u2")
		return err == nil && len(history) == 1 && history[0].Read
	}, 2*time.Second, 10*time.Millisecond)

	// Stored content is ciphertext.
	history, err := b.rest.ListMessages(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotEqual(t, "hi", history[0].Content)

	// B drops the connection without an explicit leave.
	require.NoError(t, b.live.Close())

	require.Eventually(t, func() bool {
		online, lastSeen := a.session.PeerPresence()
		return !online && lastSeen != nil
	}, 2*time.Second, 10*time.Millisecond, "A receives peerOffline with lastSeen")
	assert.False(t, srv.hub.IsOnline("u2"))
	assert.Equal(t, "Active just now", a.session.PresenceLabel())

	srv.hub.Drain()
	profile, err := a.rest.Presence(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, profile.IsOnline)
	assert.NotNil(t, profile.LastSeen)
}

func TestEndToEndTypingAndDelete(t *testing.T) {
	srv := startServer(t)
	a := srv.join(t, "u1", "u2")
	b := srv.join(t, "u2", "u1")
	t.Cleanup(func() {
		a.live.Close()
		b.live.Close()
	})

	a.session.Keystroke()
	require.Eventually(t, b.session.PeerTyping, 2*time.Second, 10*time.Millisecond)
	// The quiet period expires and B sees typing stop.
	require.Eventually(t, func() bool { return !b.session.PeerTyping() }, 5*time.Second, 20*time.Millisecond)

	sent, err := a.session.Send(context.Background(), "oops")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.session.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.rest.DeleteMessage(context.Background(), sent.ID))
	require.Eventually(t, func() bool {
		return len(a.session.Messages()) == 0 && len(b.session.Messages()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	err = b.rest.DeleteMessage(context.Background(), sent.ID)
	var apiErr *chatclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}
