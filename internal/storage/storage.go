package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pinchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the caller may not modify the record.
	ErrForbidden = errors.New("operation not permitted")
)

// Storage is the persistence contract of the messaging layer: the message
// history (the source of truth for conversations) and the user record's
// lastSeen column.
type Storage interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	SetLastSeen(ctx context.Context, userID string, ts *time.Time) error
	GetLastSeen(ctx context.Context, userID string) (*time.Time, error)

	AppendMessage(ctx context.Context, senderID, receiverID, ciphertext string) (*models.Message, error)
	ListMessagesBetween(ctx context.Context, userA, userB string) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, messageID, senderID, readerID string) error
	MarkConversationRead(ctx context.Context, senderID, readerID string) (int64, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client // optional lastSeen cache
	Log   *zap.Logger

	now func() time.Time
}

// NewStorageService Constructor. rdb may be nil, which disables the cache.
func NewStorageService(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		DB:    db,
		Redis: rdb,
		Log:   log,
		now:   time.Now,
	}
}

// AutoMigrate creates or updates the tables this package owns.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.Message{})
}

// UpsertUser inserts the user or refreshes its profile fields.
func (s *Service) UpsertUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
		}).
		Create(user).Error
}

// GetUser loads one user record.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &user, nil
}

// GetUsers loads the users that exist among userIDs; unknown IDs are skipped.
func (s *Service) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return users, nil
}

// SetLastSeen writes the user's lastSeen column; nil means "online now".
// A user row is created if the account has not been mirrored yet.
func (s *Service) SetLastSeen(ctx context.Context, userID string, ts *time.Time) error {
	now := s.now().UTC()
	user := models.User{ID: userID, LastSeen: ts, CreatedAt: now, UpdatedAt: now}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
		}).
		Create(&user).Error
	if err != nil {
		return fmt.Errorf("set last seen for %s: %w", userID, err)
	}
	s.cacheLastSeen(ctx, userID, ts)
	return nil
}

// GetLastSeen returns the persisted lastSeen, consulting the cache first.
func (s *Service) GetLastSeen(ctx context.Context, userID string) (*time.Time, error) {
	if ts, ok := s.cachedLastSeen(ctx, userID); ok {
		return ts, nil
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheLastSeen(ctx, userID, user.LastSeen)
	return user.LastSeen, nil
}

// AppendMessage persists a new unread message and returns the stored record.
func (s *Service) AppendMessage(ctx context.Context, senderID, receiverID, ciphertext string) (*models.Message, error) {
	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    ciphertext,
		Read:       false,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append message %s->%s: %w", senderID, receiverID, err)
	}
	return msg, nil
}

// ListMessagesBetween returns the conversation of two users, oldest first.
func (s *Service) ListMessagesBetween(ctx context.Context, userA, userB string) ([]models.Message, error) {
	var history []models.Message
	err := s.DB.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("created_at asc").
		Order("id asc").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("list messages %s<->%s: %w", userA, userB, err)
	}
	return history, nil
}

// MarkMessageRead flips read on a single message on behalf of its receiver.
// A message that does not exist, or was not sent by senderID to readerID,
// yields ErrNotFound.
func (s *Service) MarkMessageRead(ctx context.Context, messageID, senderID, readerID string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND sender_id = ? AND receiver_id = ?", messageID, senderID, readerID).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkConversationRead marks every unread message from senderID to readerID as read.
func (s *Service) MarkConversationRead(ctx context.Context, senderID, readerID string) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", senderID, readerID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark conversation %s->%s read: %w", senderID, readerID, res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteMessage removes a message on behalf of its sender.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg.SenderID != requesterID {
		return nil, ErrForbidden
	}
	if err := s.DB.WithContext(ctx).Delete(&models.Message{}, "id = ?", messageID).Error; err != nil {
		return nil, fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return &msg, nil
}
