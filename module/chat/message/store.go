package message

import (
	"context"
	"time"

	chatmodel "PPDirect/module/chat/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store persists conversations and messages. Lookups that miss return
// errs.ErrRecordNotFound; a second conversation for the same pair returns
// errs.ErrDuplicateKey.
type Store interface {
	FindConversation(ctx context.Context, a, b primitive.ObjectID) (*chatmodel.Conversation, error)
	GetConversation(ctx context.Context, id primitive.ObjectID) (*chatmodel.Conversation, error)
	CreateConversation(ctx context.Context, conv *chatmodel.Conversation) error
	// ListConversations orders by lastMessageAt desc, then _id desc.
	ListConversations(ctx context.Context, user primitive.ObjectID) ([]*chatmodel.Conversation, error)

	// AppendMessage inserts msg, then appends it to its conversation and makes
	// it the conversation's last message.
	AppendMessage(ctx context.Context, msg *chatmodel.Message) error
	GetMessage(ctx context.Context, id primitive.ObjectID) (*chatmodel.Message, error)
	GetMessages(ctx context.Context, ids []primitive.ObjectID) ([]*chatmodel.Message, error)
	// ListThread orders by createdAt asc, then _id asc.
	ListThread(ctx context.Context, conversationID primitive.ObjectID) ([]*chatmodel.Message, error)
	// MarkRead flips every unread message of the conversation addressed to
	// receiver and returns how many changed.
	MarkRead(ctx context.Context, conversationID, receiver primitive.ObjectID, at time.Time) (int64, error)
	// DeleteMessage pulls msg from its conversation (repairing lastMessage),
	// then deletes the message itself.
	DeleteMessage(ctx context.Context, msg *chatmodel.Message) error
}
