package model

import (
	"strings"
	"time"

	usermodel "PPDirect/module/user/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const ConversationCollection = "conversations"

const (
	ConversationFieldID            = "_id"
	ConversationFieldParticipants  = "participants"
	ConversationFieldPairKey       = "pairKey"
	ConversationFieldIsGroup       = "isGroup"
	ConversationFieldMessages      = "messages"
	ConversationFieldLastMessage   = "lastMessage"
	ConversationFieldLastMessageAt = "lastMessageAt"
	ConversationFieldCreatedAt     = "createdAt"
	ConversationFieldUpdatedAt     = "updatedAt"
)

// Conversation 两个用户之间的单聊会话。
// Messages 按时间顺序排列，只引用仍然存在的消息。
type Conversation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants  []primitive.ObjectID `bson:"participants" json:"participants"`
	PairKey       string               `bson:"pairKey" json:"-"`       // 排序后的两个用户ID，唯一索引
	IsGroup       bool                 `bson:"isGroup" json:"isGroup"` // 目前恒为 false
	Messages      []primitive.ObjectID `bson:"messages" json:"messages"`
	LastMessage   *primitive.ObjectID  `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt time.Time            `bson:"lastMessageAt" json:"lastMessageAt"` // 最近一次发送时间，列表排序用
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func (c *Conversation) GetTableName() string {
	return ConversationCollection
}

// PairKey is the order-independent identity of a direct conversation.
func PairKey(a, b primitive.ObjectID) string {
	x, y := a.Hex(), b.Hex()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

// NewDirect builds an empty direct conversation between a and b.
func NewDirect(a, b primitive.ObjectID, now time.Time) *Conversation {
	return &Conversation{
		Participants:  []primitive.ObjectID{a, b},
		PairKey:       PairKey(a, b),
		Messages:      []primitive.ObjectID{},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Conversation) HasParticipant(user primitive.ObjectID) bool {
	for _, p := range c.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// Other returns the participant that is not user.
func (c *Conversation) Other(user primitive.ObjectID) (primitive.ObjectID, bool) {
	for _, p := range c.Participants {
		if p != user {
			return p, true
		}
	}
	return primitive.NilObjectID, false
}

func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]primitive.ObjectID(nil), c.Participants...)
	out.Messages = append([]primitive.ObjectID{}, c.Messages...)
	if c.LastMessage != nil {
		id := *c.LastMessage
		out.LastMessage = &id
	}
	return &out
}

// Summary is one row of a user's conversation list.
type Summary struct {
	ID            primitive.ObjectID   `json:"id"`
	Participant   usermodel.Projection `json:"participant"`
	LastMessage   *MessageSummary      `json:"lastMessage,omitempty"`
	LastMessageAt time.Time            `json:"lastMessageAt"`
	IsGroup       bool                 `json:"isGroup"`
}

// ParseID parses a hex object id, tolerating surrounding spaces.
func ParseID(s string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}
