// Package prompt builds the conversation opener and system instruction for a
// session from the user's profile, persona and recent chat history. Pure
// functions, no I/O.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/temani/domain/entities"
)

// FirstMessage returns the text submitted to the provider to open the
// conversation: the persona's configured opener, or a generic greeting.
func FirstMessage(user *entities.User) string {
	if user.Personality != nil && user.Personality.FirstMessagePrompt != "" {
		return fmt.Sprintf(
			"Always start the conversation following these instructions from the user: %s",
			user.Personality.FirstMessagePrompt,
		)
	}
	return "Say hello to the user"
}

// SystemInstruction produces the session's system instruction. Story personas
// get the storytelling template; everyone else gets the common template with
// child-safety constraints.
func SystemInstruction(user *entities.User, history []entities.Conversation, now time.Time) string {
	chatHistory := ComposeChatHistory(history)

	if user.Personality != nil && user.Personality.IsStory {
		return storyInstruction(user, chatHistory)
	}
	return commonInstruction(user, chatHistory, now) + companionInstruction(user)
}

// ComposeChatHistory serializes history entries into one line per turn half:
// "role [timestamp]: content".
func ComposeChatHistory(history []entities.Conversation) string {
	lines := make([]string, 0, len(history))
	for _, entry := range history {
		lines = append(lines, fmt.Sprintf(
			"%s [%s]: %s",
			entry.Role, entry.CreatedAt.UTC().Format(time.RFC3339), entry.Content,
		))
	}
	return strings.Join(lines, "\n")
}

func commonInstruction(user *entities.User, chatHistory string, now time.Time) string {
	var voicePrompt, characterPrompt string
	if user.Personality != nil {
		voicePrompt = user.Personality.VoicePrompt
		characterPrompt = user.Personality.CharacterPrompt
	}

	return fmt.Sprintf(`
Your Voice Description: %s

Your Character Description: %s

The default language is: %s but you must switch to any other language if the user asks for it.

The current time is: %s

This is the chat history.
%s
`, voicePrompt, characterPrompt, user.LanguageName(), now.UTC().Format(time.RFC3339), chatHistory)
}

func companionInstruction(user *entities.User) string {
	return fmt.Sprintf(`
YOU ARE TALKING TO someone whose name is: %s and age is: %d with a personality described as: %s.

Do not ask for personal information.
Your physical form is in the form of a physical object or a toy.
A person interacts with you by pressing a button, sends you instructions and you must respond in a concise conversational style.
`, user.SuperviseeName, user.SuperviseeAge, user.SuperviseePersona)
}

func storyInstruction(user *entities.User, chatHistory string) string {
	p := user.Personality

	return fmt.Sprintf(`
You are a lively, imaginative storyteller character named %s. You are about to create a fun and exciting adventure story for %s, who is %d years old. %s loves %s.

  Your storytelling style must:
  - Narrate the story as the main character and engage with the child.
  - Assume you are speaking to a child named %s directly.
  - Be creative, immersive, and interactive.
  - Include frequent pauses or questions to let %s influence what happens next.
  - Feature themes and elements closely related to %s's interests.
  - Be age-appropriate, friendly, playful, and positive.

  Your Character Description:
  %s

  Your Voice Description:
  %s

  Storytelling Guidelines:
  - Begin the story by directly addressing %s and introducing an interesting scenario related to their interests.
  - After every 4-5 sentences or at key decision moments, pause and ask %s what should happen next or present a choice.
  - Incorporate their responses naturally and creatively to shape the ongoing narrative.
  - Conclude the story positively, reinforcing curiosity, creativity, kindness, or bravery.

  Chat History:
  %s

  Let's begin the adventure now!
`,
		p.Title, user.SuperviseeName, user.SuperviseeAge, user.SuperviseeName, user.SuperviseePersona,
		user.SuperviseeName,
		user.SuperviseeName,
		user.SuperviseeName,
		p.CharacterPrompt,
		p.VoicePrompt,
		user.SuperviseeName,
		user.SuperviseeName,
		chatHistory,
	)
}
