package chat

import (
	"encoding/json"
	"fmt"

	"PPDirect/tools/decode"
)

// 帧事件名
const (
	EventOnlineUsers    = "online-users"
	EventTyping         = "typing"
	EventMessageRead    = "message-read"
	EventNewMessage     = "new-message"
	EventMessageDeleted = "message-deleted"
)

// Frame is the JSON envelope in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InFrame is a decoded client frame; Data stays loosely typed until a handler
// decodes it.
type InFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// TypingPayload client -> server
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// TypingNotice server -> receiver
type TypingNotice struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadPayload client -> server; SenderID is the author of the message that
// was read.
type ReadPayload struct {
	SenderID  string `json:"senderId"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// ReadNotice server -> original sender
type ReadNotice struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// DeletedNotice server -> the other participant
type DeletedNotice struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// ParseFrame decodes a client frame envelope.
func ParseFrame(raw []byte) (*InFrame, error) {
	f := &InFrame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame without event")
	}
	return f, nil
}

// EncodeFrame 序列化下行帧
func EncodeFrame(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return b, nil
}

func decodePayload[T any](data map[string]any) (*T, error) {
	if data == nil {
		return nil, fmt.Errorf("frame without data")
	}
	return decode.DecodeMap[T](data)
}
