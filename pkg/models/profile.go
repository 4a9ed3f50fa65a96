// Package models contains domain models for placefeed.
package models

import "time"

// ProfilesTable is the store table holding profiles.
const ProfilesTable = "profiles"

// ProfileColumns is the projection used whenever a profile is returned to a caller.
var ProfileColumns = []string{
	"id", "username", "display_name", "avatar_url", "header_url", "bio", "is_public", "updated_at",
}

// Profile is a user profile. Username is unique, compared case-insensitively.
type Profile struct {
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
	DisplayName *string   `gorm:"column:display_name" json:"display_name"`
	AvatarURL   *string   `gorm:"column:avatar_url" json:"avatar_url"`
	HeaderURL   *string   `gorm:"column:header_url" json:"header_url"`
	Bio         *string   `gorm:"column:bio" json:"bio"`
	ID          string    `gorm:"column:id" json:"id"`
	Username    string    `gorm:"column:username" json:"username"`
	IsPublic    bool      `gorm:"column:is_public" json:"is_public"`
}
