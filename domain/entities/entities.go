package entities

import (
	"errors"
	"time"
)

// Role identifies the speaker of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultVolume is used when a device has no stored volume setting.
const DefaultVolume = 100

// User represents an authenticated account owning a device.
type User struct {
	ID                string       `json:"id" bson:"_id"`
	Email             string       `json:"email" bson:"email"`
	SuperviseeName    string       `json:"supervisee_name" bson:"supervisee_name"`
	SuperviseeAge     int          `json:"supervisee_age" bson:"supervisee_age"`
	SuperviseePersona string       `json:"supervisee_persona" bson:"supervisee_persona"`
	Language          *Language    `json:"language,omitempty" bson:"language,omitempty"`
	Personality       *Personality `json:"personality,omitempty" bson:"personality,omitempty"`
	DeviceID          string       `json:"device_id,omitempty" bson:"device_id,omitempty"`
}

// Language is the user's configured spoken language.
type Language struct {
	Name string `json:"name" bson:"name"`
}

// Personality is the AI persona selected for the device.
type Personality struct {
	Key                string `json:"key" bson:"key"`
	Title              string `json:"title" bson:"title"`
	Voice              string `json:"voice" bson:"voice"`
	VoicePrompt        string `json:"voice_prompt" bson:"voice_prompt"`
	CharacterPrompt    string `json:"character_prompt" bson:"character_prompt"`
	FirstMessagePrompt string `json:"first_message_prompt,omitempty" bson:"first_message_prompt,omitempty"`
	IsStory            bool   `json:"is_story" bson:"is_story"`
}

// Device carries the mutable settings the toy fetches at session start.
type Device struct {
	UserID  string `json:"user_id" bson:"user_id"`
	Volume  *int   `json:"volume,omitempty" bson:"volume,omitempty"`
	IsOTA   bool   `json:"is_ota" bson:"is_ota"`
	IsReset bool   `json:"is_reset" bson:"is_reset"`
}

// VolumeOrDefault returns the stored volume, or DefaultVolume when unset.
func (d *Device) VolumeOrDefault() int {
	if d == nil || d.Volume == nil {
		return DefaultVolume
	}
	return *d.Volume
}

// Conversation is one persisted half of a conversation turn.
type Conversation struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty"`
	Role           Role      `json:"role" bson:"role"`
	Content        string    `json:"content" bson:"content"`
	UserID         string    `json:"user_id" bson:"user_id"`
	PersonalityKey string    `json:"personality_key,omitempty" bson:"personality_key,omitempty"`
	IsSensitive    bool      `json:"is_sensitive" bson:"is_sensitive"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// LanguageName returns the user's language, defaulting to English.
func (u *User) LanguageName() string {
	if u.Language == nil || u.Language.Name == "" {
		return "English"
	}
	return u.Language.Name
}

// PersonaVoice returns the persona's provider voice name, or the given fallback.
func (u *User) PersonaVoice(fallback string) string {
	if u.Personality == nil || u.Personality.Voice == "" {
		return fallback
	}
	return u.Personality.Voice
}

// PersonaKey returns the persona key, empty when no persona is selected.
func (u *User) PersonaKey() string {
	if u.Personality == nil {
		return ""
	}
	return u.Personality.Key
}

// Domain validation methods
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user id is required")
	}
	if c.Role != RoleUser && c.Role != RoleAssistant {
		return errors.New("role must be user or assistant")
	}
	if c.Content == "" {
		return errors.New("content is required")
	}
	return nil
}
