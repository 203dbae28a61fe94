package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPDirect/logger"
	chatmodel "PPDirect/module/chat/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/events"
	"PPDirect/tools/errs"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserDirectory resolves profile projections. Unknown ids are simply absent
// from the result.
type UserDirectory interface {
	Projections(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error)
}

// Service owns the conversation and message invariants. It publishes
// chat.message.* events after the corresponding write succeeded.
type Service struct {
	store  Store
	users  UserDirectory
	events events.Publisher
	now    func() time.Time
}

func NewService(store Store, users UserDirectory, pub events.Publisher) *Service {
	return &Service{
		store:  store,
		users:  users,
		events: pub,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func parseID(field, s string) (primitive.ObjectID, error) {
	id, ok := chatmodel.ParseID(s)
	if !ok {
		return primitive.NilObjectID, errs.ErrArgs.WrapMsg("malformed id", "field", field, "value", s)
	}
	return id, nil
}

// FindOrCreateConversation returns the direct conversation of a and b,
// creating an empty one on first use. When two callers create the same pair
// concurrently the loser re-reads the winner's document.
func (s *Service) FindOrCreateConversation(ctx context.Context, a, b primitive.ObjectID) (*chatmodel.Conversation, error) {
	if a == b {
		return nil, errs.ErrArgs.WrapMsg("cannot start a conversation with yourself")
	}
	conv, err := s.store.FindConversation(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, err
	}

	conv = chatmodel.NewDirect(a, b, s.now())
	err = s.store.CreateConversation(ctx, conv)
	if errors.Is(err, errs.ErrDuplicateKey) {
		logger.Debug("conversation created concurrently, re-reading", zap.String("pair", conv.PairKey))
		return s.store.FindConversation(ctx, a, b)
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// SendMessage stores a text message from sender to receiver and returns it
// populated with both projections.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, body string) (*chatmodel.Populated, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.ErrArgs.WrapMsg("message is empty")
	}
	sender, err := parseID("senderId", senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := parseID("receiverId", receiverID)
	if err != nil {
		return nil, err
	}
	if sender == receiver {
		return nil, errs.ErrArgs.WrapMsg("cannot message yourself")
	}

	profiles, err := s.users.Projections(ctx, []primitive.ObjectID{sender, receiver})
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[receiver]; !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("receiver not found", "id", receiverID)
	}

	conv, err := s.FindOrCreateConversation(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &chatmodel.Message{
		ID:             primitive.NewObjectID(),
		SenderID:       sender,
		ReceiverID:     receiver,
		ConversationID: conv.ID,
		Body:           body,
		MessageType:    chatmodel.MessageTypeText,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	out := msg.Populate(projectionOf(profiles, sender), projectionOf(profiles, receiver))
	s.publish(chatmodel.EventMessageSent, chatmodel.MessageSent{Message: out})
	return out, nil
}

// FetchThread returns the viewer's thread with other, oldest first, and then
// marks everything other sent to the viewer as read. The returned messages
// show the state from before that read-mark.
func (s *Service) FetchThread(ctx context.Context, viewerID, otherID string) ([]*chatmodel.Populated, error) {
	viewer, err := parseID("viewerId", viewerID)
	if err != nil {
		return nil, err
	}
	other, err := parseID("otherId", otherID)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.FindConversation(ctx, viewer, other)
	if errors.Is(err, errs.ErrRecordNotFound) {
		return []*chatmodel.Populated{}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListThread(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.users.Projections(ctx, []primitive.ObjectID{viewer, other})
	if err != nil {
		return nil, err
	}

	unread := false
	out := make([]*chatmodel.Populated, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == other && m.ReceiverID == viewer && !m.IsRead {
			unread = true
		}
		out = append(out, m.Populate(projectionOf(profiles, m.SenderID), projectionOf(profiles, m.ReceiverID)))
	}

	if unread {
		if _, err := s.store.MarkRead(ctx, conv.ID, viewer, s.now()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*chatmodel.Summary, error) {
	user, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []*chatmodel.Summary{}, nil
	}

	others := lo.FilterMap(convs, func(c *chatmodel.Conversation, _ int) (primitive.ObjectID, bool) {
		return c.Other(user)
	})
	profiles, err := s.users.Projections(ctx, others)
	if err != nil {
		return nil, err
	}

	lastIDs := lo.FilterMap(convs, func(c *chatmodel.Conversation, _ int) (primitive.ObjectID, bool) {
		if c.LastMessage == nil {
			return primitive.NilObjectID, false
		}
		return *c.LastMessage, true
	})
	lasts, err := s.store.GetMessages(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	lastByID := lo.KeyBy(lasts, func(m *chatmodel.Message) primitive.ObjectID { return m.ID })

	out := make([]*chatmodel.Summary, 0, len(convs))
	for _, c := range convs {
		other, _ := c.Other(user)
		sum := &chatmodel.Summary{
			ID:            c.ID,
			Participant:   projectionOf(profiles, other),
			LastMessageAt: c.LastMessageAt,
			IsGroup:       c.IsGroup,
		}
		if c.LastMessage != nil {
			if m, ok := lastByID[*c.LastMessage]; ok {
				sum.LastMessage = m.Summary()
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// MarkRead flips every unread message of the conversation addressed to the
// receiver. Repeating it changes nothing.
func (s *Service) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	convID, err := parseID("conversationId", conversationID)
	if err != nil {
		return 0, err
	}
	receiver, err := parseID("receiverId", receiverID)
	if err != nil {
		return 0, err
	}
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(receiver) {
		return 0, errs.ErrNoPermission.WrapMsg("not a participant", "conversationId", conversationID)
	}
	return s.store.MarkRead(ctx, convID, receiver, s.now())
}

// DeleteMessage removes a message on behalf of its sender.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	id, err := parseID("messageId", messageID)
	if err != nil {
		return err
	}
	requester, err := parseID("requesterId", requesterID)
	if err != nil {
		return err
	}
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != requester {
		return errs.ErrNoPermission.WrapMsg("only the sender can delete a message", "messageId", messageID)
	}
	if err := s.store.DeleteMessage(ctx, msg); err != nil {
		return err
	}
	s.publish(chatmodel.EventMessageDeleted, chatmodel.MessageDeleted{
		MessageID:      msg.ID.Hex(),
		ConversationID: msg.ConversationID.Hex(),
		SenderID:       msg.SenderID.Hex(),
		ReceiverID:     msg.ReceiverID.Hex(),
	})
	return nil
}

func (s *Service) publish(kind string, payload any) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}

// projectionOf falls back to a bare id for users that no longer exist.
func projectionOf(m map[primitive.ObjectID]usermodel.Projection, id primitive.ObjectID) usermodel.Projection {
	if p, ok := m[id]; ok {
		return p
	}
	return usermodel.Projection{ID: id}
}
