package repositories

import (
	"context"

	"github.com/satriahrh/temani/domain/entities"
)

// DataStore abstracts the persistence collaborator: users, device settings,
// conversation history and per-user provider credentials.
type DataStore interface {
	// GetUserByEmail resolves an authenticated credential subject to a user,
	// including the embedded persona and language records.
	GetUserByEmail(ctx context.Context, email string) (*entities.User, error)

	// GetDevice returns the device settings for a user.
	GetDevice(ctx context.Context, userID string) (*entities.Device, error)

	// GetChatHistory returns the most recent conversation entries for a user,
	// newest first, optionally filtered by persona key.
	GetChatHistory(ctx context.Context, userID string, personalityKey string) ([]entities.Conversation, error)

	// AddConversation appends one conversation turn half.
	AddConversation(ctx context.Context, role entities.Role, content string, user *entities.User) error

	// UpdateSessionDuration records how long the user's last session lasted.
	UpdateSessionDuration(ctx context.Context, userID string, seconds int64) error

	// GetProviderKey returns the user's decrypted provider API key, if one is
	// stored for them.
	GetProviderKey(ctx context.Context, userID string) (string, error)
}
