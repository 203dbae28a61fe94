package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const UserCollection = "users"

const (
	UserFieldID          = "_id"
	UserFieldUsername    = "username"
	UserFieldEmail       = "email"
	UserFieldDisplayName = "displayName"
	UserFieldAvatarURL   = "avatarUrl"
	UserFieldCreatedAt   = "createdAt"
)

// User 用户主档。对外只暴露 Projection。
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`       // 唯一
	Email        string             `bson:"email" json:"email"`             // 唯一，小写存储
	DisplayName  string             `bson:"displayName" json:"displayName"` // 显示名
	AvatarURL    string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	PasswordHash string             `bson:"passwordHash" json:"-"` // bcrypt
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) GetTableName() string {
	return UserCollection
}

// Projection is the slice of a user shown next to messages and conversations.
type Projection struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Username    string             `bson:"username" json:"username"`
	DisplayName string             `bson:"displayName" json:"displayName"`
	AvatarURL   string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
}

func (u *User) Projection() Projection {
	return Projection{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// Matches reports whether q is a case-insensitive substring of the username
// or the display name. An empty q matches everyone.
func (u *User) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(strings.ToLower(u.DisplayName), q)
}
