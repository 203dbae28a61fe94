package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MemRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]usermodel.User
}

func NewMemRepository() *MemRepository {
	return &MemRepository{users: make(map[primitive.ObjectID]usermodel.User)}
}

func (r *MemRepository) Create(_ context.Context, u *usermodel.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.users {
		if strings.EqualFold(x.Username, u.Username) || x.Email == u.Email {
			return errs.ErrDuplicateKey.WrapMsg("username or email taken")
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemRepository) GetByID(_ context.Context, id primitive.ObjectID) (*usermodel.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user not found", "id", id.Hex())
	}
	return &u, nil
}

func (r *MemRepository) GetByEmail(_ context.Context, email string) (*usermodel.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("user not found")
}

func (r *MemRepository) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*usermodel.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*usermodel.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (r *MemRepository) Find(_ context.Context, exclude primitive.ObjectID, q string, limit int) ([]*usermodel.User, error) {
	r.mu.RLock()
	out := make([]*usermodel.User, 0)
	for _, u := range r.users {
		if u.ID == exclude || !u.Matches(q) {
			continue
		}
		u := u
		out = append(out, &u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
