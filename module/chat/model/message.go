package model

import (
	"time"

	usermodel "PPDirect/module/user/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MessageCollection = "messages"

const (
	MessageFieldID             = "_id"
	MessageFieldSenderID       = "senderId"
	MessageFieldReceiverID     = "receiverId"
	MessageFieldConversationID = "conversationId"
	MessageFieldBody           = "message"
	MessageFieldIsRead         = "isRead"
	MessageFieldType           = "messageType"
	MessageFieldCreatedAt      = "createdAt"
	MessageFieldUpdatedAt      = "updatedAt"
)

type MessageType string

// Only text is produced by the send path; the other kinds are stored as given.
const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message 单条消息。IsRead 只会从 false 变成 true。
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID       primitive.ObjectID `bson:"senderId" json:"senderId"`
	ReceiverID     primitive.ObjectID `bson:"receiverId" json:"receiverId"`
	ConversationID primitive.ObjectID `bson:"conversationId" json:"conversationId"`
	Body           string             `bson:"message" json:"message"`
	IsRead         bool               `bson:"isRead" json:"isRead"`
	MessageType    MessageType        `bson:"messageType" json:"messageType"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (m *Message) GetTableName() string {
	return MessageCollection
}

func (m *Message) Clone() *Message {
	out := *m
	return &out
}

// Populated is a message with sender and receiver ids replaced by profile
// projections. The json keys stay senderId/receiverId.
type Populated struct {
	ID             primitive.ObjectID   `json:"id"`
	Sender         usermodel.Projection `json:"senderId"`
	Receiver       usermodel.Projection `json:"receiverId"`
	ConversationID primitive.ObjectID   `json:"conversationId"`
	Body           string               `json:"message"`
	IsRead         bool                 `json:"isRead"`
	MessageType    MessageType          `json:"messageType"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func (m *Message) Populate(sender, receiver usermodel.Projection) *Populated {
	return &Populated{
		ID:             m.ID,
		Sender:         sender,
		Receiver:       receiver,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		IsRead:         m.IsRead,
		MessageType:    m.MessageType,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// MessageSummary is the last-message preview of a conversation row.
type MessageSummary struct {
	ID          primitive.ObjectID `json:"id"`
	SenderID    primitive.ObjectID `json:"senderId"`
	Body        string             `json:"message"`
	IsRead      bool               `json:"isRead"`
	MessageType MessageType        `json:"messageType"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func (m *Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:          m.ID,
		SenderID:    m.SenderID,
		Body:        m.Body,
		IsRead:      m.IsRead,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}
