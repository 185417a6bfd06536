package models_test

import (
	"pinchat/backend/internal/models"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{Name: "Ann", Email: "ann@example.com"}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	err := user.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	user := &models.User{ID: "u1"}

	assert.NoError(t, user.BeforeCreate(nil))
	assert.Equal(t, "u1", user.ID)
}

// TestMessageBeforeCreate_UniqueIDs verifies unique UUIDs are generated for multiple messages.
func TestMessageBeforeCreate_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		msg := &models.Message{SenderID: "u1", ReceiverID: "u2", Content: "00:00"}
		assert.NoError(t, msg.BeforeCreate(nil))
		assert.NotContains(t, seen, msg.ID)
		seen[msg.ID] = true
	}
	assert.Len(t, seen, 5)
}

func TestMessageParticipants(t *testing.T) {
	msg := models.Message{SenderID: "u1", ReceiverID: "u2"}

	assert.True(t, msg.Involves("u1"))
	assert.True(t, msg.Involves("u2"))
	assert.False(t, msg.Involves("u3"))

	assert.True(t, msg.Between("u1", "u2"))
	assert.True(t, msg.Between("u2", "u1"))
	assert.False(t, msg.Between("u1", "u3"))
}

// TestWireTags catches accidental renames of the JSON fields clients depend on.
func TestWireTags(t *testing.T) {
	msgType := reflect.TypeOf(models.Message{})
	for field, tag := range map[string]string{
		"ID":         "id",
		"SenderID":   "senderId",
		"ReceiverID": "receiverId",
		"Content":    "content",
		"Read":       "read",
		"CreatedAt":  "createdAt",
	} {
		f, found := msgType.FieldByName(field)
		assert.True(t, found, field)
		assert.Equal(t, tag, f.Tag.Get("json"), field)
	}

	lastSeen, found := reflect.TypeOf(models.User{}).FieldByName("LastSeen")
	assert.True(t, found)
	assert.Equal(t, reflect.TypeOf(&time.Time{}), lastSeen.Type, "LastSeen must be nullable")
}
