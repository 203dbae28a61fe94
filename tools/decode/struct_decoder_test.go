package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type typingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
	Attempt    int    `json:"attempt"`
}

func TestDecodeMap(t *testing.T) {
	req := require.New(t)

	out, err := DecodeMap[typingPayload](map[string]any{
		"senderId":   "a",
		"receiverId": "b",
		"isTyping":   true,
		"attempt":    float64(3),
	})
	req.NoError(err)
	req.Equal(typingPayload{SenderID: "a", ReceiverID: "b", IsTyping: true, Attempt: 3}, *out)
}

func TestDecodeMap_WeaklyTyped(t *testing.T) {
	out, err := DecodeMap[typingPayload](map[string]any{"isTyping": "true", "attempt": "2"})
	require.NoError(t, err)
	require.True(t, out.IsTyping)
	require.Equal(t, 2, out.Attempt)
}

func TestDecodeMap_Strict(t *testing.T) {
	_, err := DecodeMap[typingPayload](map[string]any{"isTyping": "yes please"}, Options{})
	require.Error(t, err)

	_, err = DecodeMap[typingPayload](map[string]any{"unknown": 1}, Options{WeaklyTypedInput: true, ErrorUnused: true})
	require.Error(t, err)
}

func TestDecodeMap_Nil(t *testing.T) {
	_, err := DecodeMap[typingPayload](nil)
	require.Error(t, err)
}

func TestReadString(t *testing.T) {
	req := require.New(t)
	m := map[string]any{"a": "x", "b": 1}

	v, err := ReadString(m, "a")
	req.NoError(err)
	req.Equal("x", v)

	_, err = ReadString(m, "b")
	req.Error(err)
	_, err = ReadString(m, "c")
	req.Error(err)
}
