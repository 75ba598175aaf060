package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole restricts route access via RBAC middleware.
type UserRole string

const (
	RoleService UserRole = "SERVICE"
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// ServiceAccount is an API client of this service (the host plugin or an
// operator tool). The secret is stored bcrypt-hashed.
type ServiceAccount struct {
	ID         string     `db:"id" json:"id"`
	ClientID   string     `db:"client_id" json:"client_id"`
	SecretHash string     `db:"secret_hash" json:"-"`
	Role       UserRole   `db:"role" json:"role"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// TokenRequest exchanges service-account credentials for an access token.
// The host requests tokens on behalf of the viewing user and vouches for the
// user's capability flags; they ride inside the issued token.
type TokenRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`

	UserID       int64 `json:"user_id,omitempty"`
	CanBeChecked bool  `json:"can_be_checked,omitempty"`
	Checker      bool  `json:"checker,omitempty"`
	SiteAdmin    bool  `json:"site_admin,omitempty"`
}

// TokenResponse returns the issued token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims is the access-token payload. The capability flags mirror the host
// permission system, which stays the authority; tokens just transport them.
type JWTClaims struct {
	UserID       int64    `json:"user_id"`
	Role         UserRole `json:"role"`
	CanBeChecked bool     `json:"can_be_checked"`
	Checker      bool     `json:"checker"`
	SiteAdmin    bool     `json:"site_admin"`
	jwt.RegisteredClaims
}

// AuthorContext carries the author eligibility flags the admission rules need.
type AuthorContext struct {
	UserID       int64 `json:"user_id"`
	SiteAdmin    bool  `json:"site_admin"`
	CanBeChecked bool  `json:"can_be_checked"`
	Checker      bool  `json:"checker"`
}
