package service

import (
	"context"

	usermodel "PPDirect/module/user/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repository stores accounts. Username and email are unique; Create returns
// errs.ErrDuplicateKey on a clash and lookups that miss return
// errs.ErrRecordNotFound.
type Repository interface {
	Create(ctx context.Context, u *usermodel.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*usermodel.User, error)
	GetByEmail(ctx context.Context, email string) (*usermodel.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*usermodel.User, error)
	// Find lists users other than exclude whose username or display name
	// contains q, ordered by username. An empty q matches everyone.
	Find(ctx context.Context, exclude primitive.ObjectID, q string, limit int) ([]*usermodel.User, error)
}
