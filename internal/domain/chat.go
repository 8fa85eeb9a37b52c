package domain

// ChatRole is the role attached to a message sent to the language model.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is a role-tagged message in a chat completion request.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatCompletionRequest describes one streaming completion call. Zero values
// for Model and Temperature select the provider defaults.
type ChatCompletionRequest struct {
	Model       string
	Temperature *float32
	Messages    []ChatMessage
}

// ChatMessageFromConversation converts a stored conversation turn into a prompt message.
func ChatMessageFromConversation(m ConversationMessage) ChatMessage {
	role := ChatRoleUser
	if m.Role == ConversationRoleAssistant {
		role = ChatRoleAssistant
	}
	return ChatMessage{Role: role, Content: m.Content}
}

// TextStream yields incremental text fragments from a streaming completion.
// Recv returns io.EOF once the stream has ended normally.
type TextStream interface {
	Recv() (string, error)
	Close() error
}
