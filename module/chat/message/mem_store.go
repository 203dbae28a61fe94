package message

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	chatmodel "PPDirect/module/chat/model"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore keeps everything in process memory. It backs the memory store
// driver and the package tests. Values handed out are copies.
type MemStore struct {
	mu     sync.RWMutex
	convs  map[primitive.ObjectID]*chatmodel.Conversation
	byPair map[string]primitive.ObjectID
	msgs   map[primitive.ObjectID]*chatmodel.Message
}

func NewMemStore() *MemStore {
	return &MemStore{
		convs:  make(map[primitive.ObjectID]*chatmodel.Conversation),
		byPair: make(map[string]primitive.ObjectID),
		msgs:   make(map[primitive.ObjectID]*chatmodel.Message),
	}
}

func (s *MemStore) FindConversation(_ context.Context, a, b primitive.ObjectID) (*chatmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[chatmodel.PairKey(a, b)]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found")
	}
	return s.convs[id].Clone(), nil
}

func (s *MemStore) GetConversation(_ context.Context, id primitive.ObjectID) (*chatmodel.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "id", id.Hex())
	}
	return c.Clone(), nil
}

func (s *MemStore) CreateConversation(_ context.Context, conv *chatmodel.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.PairKey == "" && len(conv.Participants) == 2 {
		conv.PairKey = chatmodel.PairKey(conv.Participants[0], conv.Participants[1])
	}
	if _, ok := s.byPair[conv.PairKey]; ok {
		return errs.ErrDuplicateKey.WrapMsg("conversation exists", "pair", conv.PairKey)
	}
	if conv.ID.IsZero() {
		conv.ID = primitive.NewObjectID()
	}
	s.convs[conv.ID] = conv.Clone()
	s.byPair[conv.PairKey] = conv.ID
	return nil
}

func (s *MemStore) ListConversations(_ context.Context, user primitive.ObjectID) ([]*chatmodel.Conversation, error) {
	s.mu.RLock()
	out := make([]*chatmodel.Conversation, 0)
	for _, c := range s.convs {
		if c.HasParticipant(user) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	return out, nil
}

func (s *MemStore) AppendMessage(_ context.Context, msg *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[msg.ConversationID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("conversation not found", "id", msg.ConversationID.Hex())
	}
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	s.msgs[msg.ID] = msg.Clone()

	id := msg.ID
	c.Messages = append(c.Messages, id)
	c.LastMessage = &id
	c.LastMessageAt = msg.CreatedAt
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemStore) GetMessage(_ context.Context, id primitive.ObjectID) (*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "id", id.Hex())
	}
	return m.Clone(), nil
}

func (s *MemStore) GetMessages(_ context.Context, ids []primitive.ObjectID) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chatmodel.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.msgs[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *MemStore) ListThread(_ context.Context, conversationID primitive.ObjectID) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	out := make([]*chatmodel.Message, 0)
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	sortThread(out)
	return out, nil
}

func sortThread(msgs []*chatmodel.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return bytes.Compare(msgs[i].ID[:], msgs[j].ID[:]) < 0
	})
}

func (s *MemStore) MarkRead(_ context.Context, conversationID, receiver primitive.ObjectID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.ConversationID == conversationID && m.ReceiverID == receiver && !m.IsRead {
			m.IsRead = true
			m.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeleteMessage(_ context.Context, msg *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[msg.ConversationID]; ok {
		c.Messages = pull(c.Messages, msg.ID)
		if c.LastMessage != nil && *c.LastMessage == msg.ID {
			c.LastMessage = lastOf(c.Messages)
		}
	}
	if _, ok := s.msgs[msg.ID]; !ok {
		return errs.ErrRecordNotFound.WrapMsg("message not found", "id", msg.ID.Hex())
	}
	delete(s.msgs, msg.ID)
	return nil
}

func pull(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func lastOf(ids []primitive.ObjectID) *primitive.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	id := ids[len(ids)-1]
	return &id
}
