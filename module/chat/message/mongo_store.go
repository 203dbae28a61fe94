package message

import (
	"context"
	"errors"
	"time"

	"PPDirect/data/database/mgo/mongoutil"
	chatmodel "PPDirect/module/chat/model"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database is the slice of the Mongo manager the store needs.
type Database interface {
	DB() (*mongo.Database, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type MongoStore struct {
	db Database
}

func NewMongoStore(db Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) convColl() (*mongo.Collection, error) {
	db, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	return db.Collection(chatmodel.ConversationCollection), nil
}

func (s *MongoStore) msgColl() (*mongo.Collection, error) {
	db, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	return db.Collection(chatmodel.MessageCollection), nil
}

// colls 一次取齐两个集合
func (s *MongoStore) colls() (conv, msg *mongo.Collection, err error) {
	if conv, err = s.convColl(); err != nil {
		return nil, nil, err
	}
	if msg, err = s.msgColl(); err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// EnsureIndexes creates the thread, unread and pair indexes. Safe to repeat.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	convs, msgs, err := s.colls()
	if err != nil {
		return err
	}
	_, err = convs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: chatmodel.ConversationFieldParticipants, Value: 1}}},
		{
			Keys:    bson.D{{Key: chatmodel.ConversationFieldPairKey, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pair"),
		},
		{Keys: bson.D{
			{Key: chatmodel.ConversationFieldLastMessageAt, Value: -1},
			{Key: chatmodel.ConversationFieldID, Value: -1},
		}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create conversation indexes")
	}
	_, err = msgs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: chatmodel.MessageFieldConversationID, Value: 1},
			{Key: chatmodel.MessageFieldCreatedAt, Value: 1},
		}},
		{Keys: bson.D{
			{Key: chatmodel.MessageFieldReceiverID, Value: 1},
			{Key: chatmodel.MessageFieldSenderID, Value: 1},
			{Key: chatmodel.MessageFieldIsRead, Value: 1},
		}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create message indexes")
	}
	return nil
}

func (s *MongoStore) findConversation(ctx context.Context, filter bson.M) (*chatmodel.Conversation, error) {
	coll, err := s.convColl()
	if err != nil {
		return nil, err
	}
	var c chatmodel.Conversation
	err = coll.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found")
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find conversation")
	}
	return &c, nil
}

func (s *MongoStore) FindConversation(ctx context.Context, a, b primitive.ObjectID) (*chatmodel.Conversation, error) {
	return s.findConversation(ctx, bson.M{chatmodel.ConversationFieldPairKey: chatmodel.PairKey(a, b)})
}

func (s *MongoStore) GetConversation(ctx context.Context, id primitive.ObjectID) (*chatmodel.Conversation, error) {
	return s.findConversation(ctx, bson.M{chatmodel.ConversationFieldID: id})
}

func (s *MongoStore) CreateConversation(ctx context.Context, conv *chatmodel.Conversation) error {
	if conv.ID.IsZero() {
		conv.ID = primitive.NewObjectID()
	}
	if conv.PairKey == "" && len(conv.Participants) == 2 {
		conv.PairKey = chatmodel.PairKey(conv.Participants[0], conv.Participants[1])
	}
	coll, err := s.convColl()
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, conv); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey.WrapMsg("conversation exists", "pair", conv.PairKey)
		}
		return errs.WrapMsg(err, "insert conversation")
	}
	return nil
}

func (s *MongoStore) ListConversations(ctx context.Context, user primitive.ObjectID) ([]*chatmodel.Conversation, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: chatmodel.ConversationFieldLastMessageAt, Value: -1},
		{Key: chatmodel.ConversationFieldID, Value: -1},
	})
	coll, err := s.convColl()
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{chatmodel.ConversationFieldParticipants: user}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "list conversations")
	}
	out := make([]*chatmodel.Conversation, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode conversations")
	}
	return out, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, msg *chatmodel.Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	convs, msgs, err := s.colls()
	if err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := msgs.InsertOne(ctx, msg); err != nil {
			return errs.WrapMsg(err, "insert message")
		}
		res, err := convs.UpdateOne(ctx,
			bson.M{chatmodel.ConversationFieldID: msg.ConversationID},
			bson.M{
				"$push": bson.M{chatmodel.ConversationFieldMessages: msg.ID},
				"$set": bson.M{
					chatmodel.ConversationFieldLastMessage:   msg.ID,
					chatmodel.ConversationFieldLastMessageAt: msg.CreatedAt,
					chatmodel.ConversationFieldUpdatedAt:     msg.CreatedAt,
				},
			})
		if err == nil && res.MatchedCount == 0 {
			err = errs.ErrRecordNotFound.WrapMsg("conversation not found", "id", msg.ConversationID.Hex())
		}
		if err != nil {
			// without a transaction the insert has to be undone by hand
			_, _ = msgs.DeleteOne(context.WithoutCancel(ctx), bson.M{chatmodel.MessageFieldID: msg.ID})
			return errs.WrapMsg(err, "append message to conversation")
		}
		return nil
	})
}

func (s *MongoStore) GetMessage(ctx context.Context, id primitive.ObjectID) (*chatmodel.Message, error) {
	coll, err := s.msgColl()
	if err != nil {
		return nil, err
	}
	var m chatmodel.Message
	err = coll.FindOne(ctx, bson.M{chatmodel.MessageFieldID: id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "id", id.Hex())
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find message")
	}
	return &m, nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*chatmodel.Message, error) {
	coll, err := s.msgColl()
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages")
	}
	out := make([]*chatmodel.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}
	return out, nil
}

func (s *MongoStore) GetMessages(ctx context.Context, ids []primitive.ObjectID) ([]*chatmodel.Message, error) {
	if len(ids) == 0 {
		return []*chatmodel.Message{}, nil
	}
	return s.findMessages(ctx, bson.M{chatmodel.MessageFieldID: bson.M{"$in": ids}})
}

func (s *MongoStore) ListThread(ctx context.Context, conversationID primitive.ObjectID) ([]*chatmodel.Message, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: chatmodel.MessageFieldCreatedAt, Value: 1},
		{Key: chatmodel.MessageFieldID, Value: 1},
	})
	return s.findMessages(ctx, bson.M{chatmodel.MessageFieldConversationID: conversationID}, opts)
}

func (s *MongoStore) MarkRead(ctx context.Context, conversationID, receiver primitive.ObjectID, at time.Time) (int64, error) {
	coll, err := s.msgColl()
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx,
		bson.M{
			chatmodel.MessageFieldConversationID: conversationID,
			chatmodel.MessageFieldReceiverID:     receiver,
			chatmodel.MessageFieldIsRead:         false,
		},
		bson.M{"$set": bson.M{
			chatmodel.MessageFieldIsRead:    true,
			chatmodel.MessageFieldUpdatedAt: at,
		}})
	if err != nil {
		return 0, errs.WrapMsg(err, "mark read")
	}
	return res.ModifiedCount, nil
}

// DeleteMessage pulls before deleting so the list never names a missing
// message, even when transactions are off.
func (s *MongoStore) DeleteMessage(ctx context.Context, msg *chatmodel.Message) error {
	convs, msgs, err := s.colls()
	if err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(ctx context.Context) error {
		var conv chatmodel.Conversation
		err := convs.FindOneAndUpdate(ctx,
			bson.M{chatmodel.ConversationFieldID: msg.ConversationID},
			bson.M{"$pull": bson.M{chatmodel.ConversationFieldMessages: msg.ID}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&conv)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
		case err != nil:
			return errs.WrapMsg(err, "pull message from conversation")
		case conv.LastMessage != nil && *conv.LastMessage == msg.ID:
			update := bson.M{"$unset": bson.M{chatmodel.ConversationFieldLastMessage: ""}}
			if last := lastOf(conv.Messages); last != nil {
				update = bson.M{"$set": bson.M{chatmodel.ConversationFieldLastMessage: *last}}
			}
			// only if no newer message took the pointer meanwhile
			_, err := convs.UpdateOne(ctx, bson.M{
				chatmodel.ConversationFieldID:          conv.ID,
				chatmodel.ConversationFieldLastMessage: msg.ID,
			}, update)
			if err != nil {
				return errs.WrapMsg(err, "repair last message")
			}
		}

		res, err := msgs.DeleteOne(ctx, bson.M{chatmodel.MessageFieldID: msg.ID})
		if err != nil {
			return errs.WrapMsg(err, "delete message")
		}
		if res.DeletedCount == 0 {
			return errs.ErrRecordNotFound.WrapMsg("message not found", "id", msg.ID.Hex())
		}
		return nil
	})
}
