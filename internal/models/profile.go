package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuthProvider string

const (
	AuthProviderEmail AuthProvider = "email"
	// AuthProviderPush marks buyers who signed in through the messaging
	// platform only. Their account email is a placeholder.
	AuthProviderPush AuthProvider = "push"
)

type Profile struct {
	bun.BaseModel `bun:"table:profiles"`

	UserID        string       `bun:"user_id,pk" json:"user_id"`
	StudentID     int64        `bun:"student_id,notnull,unique" json:"student_id"`
	FullName      string       `bun:"full_name,notnull" json:"full_name"`
	AuthProvider  AuthProvider `bun:"auth_provider,notnull" json:"auth_provider"`
	PushChannelID string       `bun:"push_channel_id,nullzero" json:"push_channel_id,omitempty"`
	CreatedAt     time.Time    `bun:"created_at,notnull" json:"created_at"`
}

func (p Profile) IsPushOnly() bool {
	return p.AuthProvider == AuthProviderPush
}

func (p Profile) HasPushChannel() bool {
	return p.PushChannelID != ""
}
