// Package domain contains core business types and interfaces.
//
// This file defines the User and Session domain types shared by the
// auth service, stores, and middleware. These types are separate from
// any row-level repository models so business logic can enrich them
// without coupling to the storage layer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account in the identity system.
type User struct {
	ID              uuid.UUID
	Email           string
	PasswordHash    string // Never expose this in API responses
	Name            string
	Role            Role
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session represents an authenticated session.
//
// Sessions are stored with a hashed token; the raw token is only
// given to the client once, at sign-in. IPAddress and UserAgent are
// recorded at creation and never updated.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SignUpParams contains the validated parameters for account creation.
type SignUpParams struct {
	Email    string
	Password string // Raw password, hashed by the service
	Name     string
}

// SignInParams contains the validated parameters for password sign-in.
type SignInParams struct {
	Email    string
	Password string
}

// SignInResult contains the result of a successful sign-in.
type SignInResult struct {
	User         *User
	SessionToken string // Raw session token, returned once
	BearerToken  string // Signed bearer token, returned once
	ExpiresAt    time.Time
}

// RequestContext carries the connection metadata recorded on a new
// session. It is not persisted beyond the session row itself.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// PasswordChangeParams contains parameters for changing a user's password
// while authenticated (as opposed to the reset-token flow).
type PasswordChangeParams struct {
	UserID          uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// ProfileUpdateParams contains parameters for updating a user's profile.
type ProfileUpdateParams struct {
	UserID uuid.UUID
	Name   string
}

// UserListFilter narrows UserStore.List/Count. A zero-value field
// means that field imposes no constraint. Search matches as a
// case-insensitive substring of the email; Role matches exactly.
type UserListFilter struct {
	Search string
	Role   Role
}
