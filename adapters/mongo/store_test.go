package mongo

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/temani/domain/entities"
)

// TestStore_Integration exercises the data store against a live MongoDB.
// Skipped unless MONGODB_URI is set.
func TestStore_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	testDB := client.Database("temani_test")
	defer testDB.Drop(ctx)

	masterKey := base64.StdEncoding.EncodeToString(make([]byte, 32))
	store := NewStore(testDB, masterKey)

	user := &entities.User{
		ID:             "user-001",
		Email:          "parent@example.com",
		SuperviseeName: "Mika",
		SuperviseeAge:  5,
		Personality:    &entities.Personality{Key: "storyteller", Voice: "Sadachbia"},
	}

	t.Run("GetUserByEmail", func(t *testing.T) {
		if _, err := testDB.Collection("users").InsertOne(ctx, user); err != nil {
			t.Fatalf("seed user: %v", err)
		}

		got, err := store.GetUserByEmail(ctx, user.Email)
		if err != nil {
			t.Fatalf("GetUserByEmail() error: %v", err)
		}
		if got.ID != user.ID || got.SuperviseeName != "Mika" {
			t.Errorf("user = %+v", got)
		}
		if got.Personality == nil || got.Personality.Voice != "Sadachbia" {
			t.Errorf("personality = %+v", got.Personality)
		}

		if _, err := store.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown email error = %v, want ErrNotFound", err)
		}
	})

	t.Run("GetDevice", func(t *testing.T) {
		volume := 70
		if _, err := testDB.Collection("devices").InsertOne(ctx, entities.Device{
			UserID: user.ID,
			Volume: &volume,
			IsOTA:  true,
		}); err != nil {
			t.Fatalf("seed device: %v", err)
		}

		device, err := store.GetDevice(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetDevice() error: %v", err)
		}
		if device.VolumeOrDefault() != 70 || !device.IsOTA {
			t.Errorf("device = %+v", device)
		}
	})

	t.Run("ConversationRoundTrip", func(t *testing.T) {
		if err := store.AddConversation(ctx, entities.RoleUser, "hello toy", user); err != nil {
			t.Fatalf("AddConversation() error: %v", err)
		}
		if err := store.AddConversation(ctx, entities.RoleAssistant, "hi mika", user); err != nil {
			t.Fatalf("AddConversation() error: %v", err)
		}

		history, err := store.GetChatHistory(ctx, user.ID, user.PersonaKey())
		if err != nil {
			t.Fatalf("GetChatHistory() error: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("history length = %d, want 2", len(history))
		}
		// Newest first.
		if history[0].Role != entities.RoleAssistant || history[0].Content != "hi mika" {
			t.Errorf("history[0] = %+v", history[0])
		}
		if history[0].PersonalityKey != "storyteller" {
			t.Errorf("personality key = %q", history[0].PersonalityKey)
		}
	})

	t.Run("UpdateSessionDuration", func(t *testing.T) {
		if err := store.UpdateSessionDuration(ctx, user.ID, 93); err != nil {
			t.Fatalf("UpdateSessionDuration() error: %v", err)
		}

		var doc bson.M
		if err := testDB.Collection("devices").
			FindOne(ctx, bson.M{"user_id": user.ID}).Decode(&doc); err != nil {
			t.Fatalf("read device doc: %v", err)
		}
		if doc["session_duration_seconds"] != int64(93) {
			t.Errorf("session_duration_seconds = %v, want 93", doc["session_duration_seconds"])
		}
	})

	t.Run("GetProviderKey", func(t *testing.T) {
		encrypted, iv := encryptForTest(t, masterKey, "sk-user-own-key")
		if _, err := testDB.Collection("api_keys").InsertOne(ctx, bson.M{
			"user_id":       user.ID,
			"encrypted_key": encrypted,
			"iv":            iv,
		}); err != nil {
			t.Fatalf("seed api key: %v", err)
		}

		key, err := store.GetProviderKey(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetProviderKey() error: %v", err)
		}
		if key != "sk-user-own-key" {
			t.Errorf("key = %q, want sk-user-own-key", key)
		}

		if _, err := store.GetProviderKey(ctx, "user-without-key"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing key error = %v, want ErrNotFound", err)
		}
	})
}

func encryptForTest(t *testing.T, masterKey, plaintext string) (string, string) {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		t.Fatalf("decode master key: %v", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("generate iv: %v", err)
	}

	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), make([]byte, padding)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), base64.StdEncoding.EncodeToString(iv)
}
