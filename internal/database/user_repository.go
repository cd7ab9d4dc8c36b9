package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/travelhub/booking-backend/internal/models"
)

// userEmailConstraint is the unique index on users.email
const userEmailConstraint = "users_email_key"

const userColumns = `id, name, email, password_hash, phone, address, date_of_birth,
	role, profile_image, created_at, updated_at`

// ErrEmailTaken is returned when an email is already registered
var ErrEmailTaken = errors.New("email already registered")

// UserRepository handles user database operations
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// Create inserts a new user. Emails are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Email = normalizeEmail(user.Email)

	query := `
		INSERT INTO users (id, name, email, password_hash, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Phone, user.Role,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, userEmailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByEmail returns a user by email, compared case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// EmailTaken reports whether another user already owns the email.
// excludeID may be uuid.Nil.
func (r *UserRepository) EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2)`
	if err := r.db.GetContext(ctx, &exists, query, normalizeEmail(email), excludeID); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdateProfile writes the editable profile fields of a user
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)

	query := `
		UPDATE users SET
			name = $2, email = $3, phone = $4, address = $5, date_of_birth = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID, user.Name, user.Email, user.Phone, user.Address, user.DateOfBirth.NullTime,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFoundError("User")
		}
		if isUniqueViolation(err, userEmailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NewNotFoundError("User")
	}
	return nil
}

// List returns every user newest first
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
