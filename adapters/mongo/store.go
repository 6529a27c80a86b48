package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/temani/domain/entities"
	"github.com/satriahrh/temani/domain/repositories"
	"github.com/satriahrh/temani/internal/secrets"
)

// historyLimit bounds how much conversation context is loaded per session.
const historyLimit = 20

var ErrNotFound = errors.New("mongo: not found")

// Store implements repositories.DataStore over MongoDB collections.
type Store struct {
	users         *mongo.Collection
	devices       *mongo.Collection
	conversations *mongo.Collection
	apiKeys       *mongo.Collection

	// encryptionKey decrypts stored provider API keys.
	encryptionKey string
}

// NewStore creates the MongoDB data store. encryptionKey is the base64 master
// key for stored provider credentials; leave empty to disable per-user keys.
func NewStore(db *mongo.Database, encryptionKey string) repositories.DataStore {
	return &Store{
		users:         db.Collection("users"),
		devices:       db.Collection("devices"),
		conversations: db.Collection("conversations"),
		apiKeys:       db.Collection("api_keys"),
		encryptionKey: encryptionKey,
	}
}

// GetUserByEmail implements repositories.DataStore
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*entities.User, error) {
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}

	var user entities.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetDevice implements repositories.DataStore
func (s *Store) GetDevice(ctx context.Context, userID string) (*entities.Device, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	var device entities.Device
	err := s.devices.FindOne(ctx, bson.M{"user_id": userID}).Decode(&device)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device for user %s: %w", userID, err)
	}
	return &device, nil
}

// GetChatHistory implements repositories.DataStore
func (s *Store) GetChatHistory(ctx context.Context, userID string, personalityKey string) ([]entities.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	filter := bson.M{"user_id": userID}
	if personalityKey != "" {
		filter["personality_key"] = personalityKey
	}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(historyLimit)

	cursor, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer cursor.Close(ctx)

	var history []entities.Conversation
	if err := cursor.All(ctx, &history); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return history, nil
}

// AddConversation implements repositories.DataStore
func (s *Store) AddConversation(ctx context.Context, role entities.Role, content string, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}

	entry := entities.Conversation{
		Role:           role,
		Content:        content,
		UserID:         user.ID,
		PersonalityKey: user.PersonaKey(),
		CreatedAt:      time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	doc := bson.M{
		"role":            entry.Role,
		"content":         entry.Content,
		"user_id":         entry.UserID,
		"personality_key": entry.PersonalityKey,
		"is_sensitive":    entry.IsSensitive,
		"created_at":      entry.CreatedAt,
	}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to add conversation: %w", err)
	}
	return nil
}

// UpdateSessionDuration implements repositories.DataStore
func (s *Store) UpdateSessionDuration(ctx context.Context, userID string, seconds int64) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}

	update := bson.M{
		"$set": bson.M{
			"session_duration_seconds": seconds,
			"session_ended_at":         time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.devices.UpdateOne(ctx, bson.M{"user_id": userID}, update, opts); err != nil {
		return fmt.Errorf("failed to update session duration: %w", err)
	}
	return nil
}

// apiKeyDocument is the stored shape of an encrypted provider credential.
type apiKeyDocument struct {
	UserID       string `bson:"user_id"`
	EncryptedKey string `bson:"encrypted_key"`
	IV           string `bson:"iv"`
}

// GetProviderKey implements repositories.DataStore
func (s *Store) GetProviderKey(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user ID cannot be empty")
	}
	if s.encryptionKey == "" {
		return "", ErrNotFound
	}

	var doc apiKeyDocument
	err := s.apiKeys.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get provider key: %w", err)
	}

	key, err := secrets.Decrypt(doc.EncryptedKey, doc.IV, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt provider key: %w", err)
	}
	return key, nil
}
