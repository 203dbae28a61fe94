package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"PPDirect/data/database/mgo/mongoutil"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBProvider hands out the current database handle.
type DBProvider interface {
	DB() (*mongo.Database, error)
}

type MongoRepository struct {
	db DBProvider
}

func NewMongoRepository(db DBProvider) *MongoRepository {
	return &MongoRepository{db: db}
}

func (r *MongoRepository) coll() (*mongo.Collection, error) {
	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	return db.Collection(usermodel.UserCollection), nil
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	// usernames compare case-insensitively, like the memory repository
	ci := &options.Collation{Locale: "en", Strength: 2}
	coll, err := r.coll()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: usermodel.UserFieldUsername, Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(ci).SetName("uniq_username"),
		},
		{
			Keys:    bson.D{{Key: usermodel.UserFieldEmail, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create user indexes")
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, u *usermodel.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	coll, err := r.coll()
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, u); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey.WrapMsg("username or email taken")
		}
		return errs.WrapMsg(err, "insert user")
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*usermodel.User, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}
	var u usermodel.User
	err = coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user not found")
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find user")
	}
	return &u, nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*usermodel.User, error) {
	return r.findOne(ctx, bson.M{usermodel.UserFieldID: id})
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*usermodel.User, error) {
	return r.findOne(ctx, bson.M{usermodel.UserFieldEmail: email})
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*usermodel.User, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "find users")
	}
	out := make([]*usermodel.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode users")
	}
	return out, nil
}

func (r *MongoRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*usermodel.User, error) {
	if len(ids) == 0 {
		return []*usermodel.User{}, nil
	}
	return r.find(ctx, bson.M{usermodel.UserFieldID: bson.M{"$in": ids}})
}

func (r *MongoRepository) Find(ctx context.Context, exclude primitive.ObjectID, q string, limit int) ([]*usermodel.User, error) {
	filter := bson.M{usermodel.UserFieldID: bson.M{"$ne": exclude}}
	if q = strings.TrimSpace(q); q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{usermodel.UserFieldUsername: re},
			bson.M{usermodel.UserFieldDisplayName: re},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: usermodel.UserFieldUsername, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}
