package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"PPDirect/logger"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/security"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultListLimit = 200

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	return v
}

// RegisterParams 注册入参
type RegisterParams struct {
	Username    string `json:"username" validate:"required,min=3,max=32,username"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"` // bcrypt 只看前 72 字节
	DisplayName string `json:"displayName" validate:"max=64"`
}

// AuthResult 登录/注册的返回
type AuthResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *usermodel.User `json:"user"`
}

// View is one row of the user sidebar.
type View struct {
	usermodel.Projection
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// LastSeenReader is optional; without it views carry no lastSeen.
type LastSeenReader interface {
	LastSeen(ctx context.Context, users []string) (map[string]time.Time, error)
}

type Service struct {
	repo     Repository
	jwt      security.Options
	lastSeen LastSeenReader
	validate *validator.Validate
	hash     func(string) (string, error)
	now      func() time.Time
}

// Option tunes a Service.
type Option func(*Service)

// WithPasswordHasher replaces bcrypt at the default cost.
func WithPasswordHasher(hash func(string) (string, error)) Option {
	return func(s *Service) { s.hash = hash }
}

func NewService(repo Repository, jwt security.Options, lastSeen LastSeenReader, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		jwt:      jwt,
		lastSeen: lastSeen,
		validate: newValidator(),
		hash:     security.HashPassword,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (*AuthResult, error) {
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if err := s.validate.Struct(p); err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	if err := security.ValidatePassword(p.Password); err != nil {
		return nil, err
	}
	hash, err := s.hash(p.Password)
	if err != nil {
		return nil, err
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}

	now := s.now()
	u := &usermodel.User{
		ID:           primitive.NewObjectID(),
		Username:     p.Username,
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("user registered", zap.String("userId", u.ID.Hex()), zap.String("username", u.Username))
	return s.issue(u)
}

// Login answers ErrBadCredentials for an unknown email and a wrong password
// alike.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, errs.ErrRecordNotFound) {
		return nil, errs.ErrBadCredentials.WrapMsg("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !security.CheckPassword(u.PasswordHash, password) {
		return nil, errs.ErrBadCredentials.WrapMsg("invalid email or password")
	}
	return s.issue(u)
}

func (s *Service) issue(u *usermodel.User) (*AuthResult, error) {
	token, exp, err := security.Generate(s.jwt, u.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Get returns the account behind a verified token.
func (s *Service) Get(ctx context.Context, userID string) (*usermodel.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("malformed user id", "value", userID)
	}
	return s.repo.GetByID(ctx, id)
}

// List returns every user except the caller whose name contains q.
func (s *Service) List(ctx context.Context, callerID, q string) ([]View, error) {
	caller, err := primitive.ObjectIDFromHex(callerID)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("malformed user id", "value", callerID)
	}
	users, err := s.repo.Find(ctx, caller, q, defaultListLimit)
	if err != nil {
		return nil, err
	}
	views := lo.Map(users, func(u *usermodel.User, _ int) View { return View{Projection: u.Projection()} })
	if s.lastSeen == nil || len(views) == 0 {
		return views, nil
	}

	seen, err := s.lastSeen.LastSeen(ctx, lo.Map(users, func(u *usermodel.User, _ int) string { return u.ID.Hex() }))
	if err != nil {
		logger.Warn("last seen lookup failed", zap.Error(err))
		return views, nil
	}
	for i := range views {
		if t, ok := seen[views[i].ID.Hex()]; ok {
			t := t
			views[i].LastSeen = &t
		}
	}
	return views, nil
}

// Projections implements the chat module's user directory.
func (s *Service) Projections(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error) {
	users, err := s.repo.GetByIDs(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]usermodel.Projection, len(users))
	for _, u := range users {
		out[u.ID] = u.Projection()
	}
	return out, nil
}
