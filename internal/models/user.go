package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NullString wraps sql.NullString to provide proper JSON marshaling
type NullString struct {
	sql.NullString
}

// MarshalJSON implements json.Marshaler
func (ns NullString) MarshalJSON() ([]byte, error) {
	if ns.Valid {
		return json.Marshal(ns.String)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (ns *NullString) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != nil {
		ns.Valid = true
		ns.String = *s
	} else {
		ns.Valid = false
	}
	return nil
}

// NullTime wraps sql.NullTime to provide proper JSON marshaling
type NullTime struct {
	sql.NullTime
}

// MarshalJSON implements json.Marshaler
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if nt.Valid {
		return json.Marshal(nt.Time)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (nt *NullTime) UnmarshalJSON(data []byte) error {
	var t *time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	if t != nil {
		nt.Valid = true
		nt.Time = *t
	} else {
		nt.Valid = false
	}
	return nil
}

// UserRole is the access level of an account
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User represents an account in the system
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // Never expose
	Phone        string     `json:"phone" db:"phone"`
	Address      string     `json:"address" db:"address"`
	DateOfBirth  NullTime   `json:"dateOfBirth" db:"date_of_birth"`
	Role         UserRole   `json:"role" db:"role"`
	ProfileImage NullString `json:"profileImage" db:"profile_image"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Summary returns the public subset of the user returned by auth endpoints
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserSummary is the short user form attached to tokens and admin listings
type UserSummary struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Email string    `json:"email" db:"email"`
	Role  UserRole  `json:"role,omitempty" db:"role"`
}

// Requester identifies the caller of a service operation
type Requester struct {
	UserID uuid.UUID
	Role   UserRole
}

// IsAdmin reports whether the caller holds the admin role
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// RegisterRequest is the payload of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

// LoginRequest is the payload of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest is a partial profile update; nil fields are unchanged
type UpdateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,phone"`
	Address     *string `json:"address"`
	DateOfBirth *string `json:"dateOfBirth"`
}

// ChangePasswordRequest is the payload of PUT /users/change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// RefreshToken represents a stored JWT refresh token
type RefreshToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"userId" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"` // Never expose
	IPAddress NullString `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent NullString `json:"userAgent,omitempty" db:"user_agent"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	RevokedAt NullTime   `json:"revokedAt,omitempty" db:"revoked_at"`
}

// IsUsable reports whether the token is neither revoked nor expired
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return !t.RevokedAt.Valid && now.Before(t.ExpiresAt)
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         int64         `json:"id" db:"id"`
	UserID     uuid.NullUUID `json:"userId,omitempty" db:"user_id"`
	Action     string        `json:"action" db:"action"`
	EntityType string        `json:"entityType" db:"entity_type"`
	EntityID   uuid.NullUUID `json:"entityId,omitempty" db:"entity_id"`
	IPAddress  string        `json:"ipAddress" db:"ip_address"`
	UserAgent  string        `json:"userAgent" db:"user_agent"`
	Details    string        `json:"details" db:"details"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
}

// DashboardStats is the admin overview
type DashboardStats struct {
	TotalUsers         int    `json:"totalUsers"`
	TotalTrips         int    `json:"totalTrips"`
	TotalBookings      int    `json:"totalBookings"`
	UpcomingDepartures int    `json:"upcomingDepartures"`
	UpcomingTrips      []Trip `json:"upcomingTrips"`
}
