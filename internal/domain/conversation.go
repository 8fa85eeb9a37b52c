package domain

import "time"

// ConversationRole identifies who authored a conversation message
type ConversationRole string

const (
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

// ConversationMessage is one turn of a conversation
type ConversationMessage struct {
	Role      ConversationRole
	Content   string
	CreatedAt time.Time
}

// NewConversationMessage creates a message stamped with the current UTC time
func NewConversationMessage(role ConversationRole, content string) ConversationMessage {
	return ConversationMessage{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
