package model

// Domain events published by the message service.
const (
	EventMessageSent    = "chat.message.sent"
	EventMessageDeleted = "chat.message.deleted"
)

// MessageSent is published once the message and the conversation update are
// both persisted.
type MessageSent struct {
	Message *Populated `json:"message"`
}

// MessageDeleted is published once the message is gone from the messages
// collection and from its conversation.
type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
}

// EventKey keeps every event of one conversation on one partition.
func (e MessageSent) EventKey() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ConversationID.Hex()
}

func (e MessageDeleted) EventKey() string { return e.ConversationID }
