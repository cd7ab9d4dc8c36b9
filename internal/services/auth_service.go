package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/jwt"
	"github.com/travelhub/booking-backend/pkg/validator"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the user persistence used by the auth and user services
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	List(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int, error)
}

// RefreshTokenStore keeps issued refresh tokens so they can be revoked
type RefreshTokenStore interface {
	Store(ctx context.Context, userID uuid.UUID, token, ipAddress, userAgent string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

// AuthResult is returned by register and login
type AuthResult struct {
	Token        string             `json:"token"`
	RefreshToken string             `json:"refreshToken"`
	ExpiresIn    int64              `json:"expiresIn"` // access token lifetime in seconds
	User         models.UserSummary `json:"user"`
}

// AuthService handles registration, login and token refresh
type AuthService struct {
	users      UserStore
	tokens     RefreshTokenStore
	jwt        *jwt.Service
	validator  *validator.Validator
	bcryptCost int
	audit      *AuditService
	logger     *logrus.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserStore,
	tokens RefreshTokenStore,
	jwtService *jwt.Service,
	v *validator.Validator,
	bcryptCost int,
	audit *AuditService,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwt:        jwtService,
		validator:  v,
		bcryptCost: bcryptCost,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates a user account with the user role and signs it in
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	taken, err := s.users.EmailTaken(ctx, req.Email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.NewValidationError("User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError("Failed to hash password", err)
	}

	phone := ""
	if req.Phone != "" {
		phone = s.validator.Phone().Sanitize(req.Phone)
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: string(hash),
		Phone:        phone,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, models.NewValidationError("User already exists")
		}
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	s.audit.LogRegister(ctx, user.ID, user.Email)

	return s.issueTokens(ctx, user)
}

// Login verifies credentials and issues a token pair
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewValidationError("%s", err.Error())
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			s.audit.LogLogin(ctx, nil, req.Email, false)
			return nil, models.NewUnauthenticatedError("Invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.audit.LogLogin(ctx, &user.ID, req.Email, false)
		return nil, models.NewUnauthenticatedError("Invalid credentials")
	}

	s.audit.LogLogin(ctx, &user.ID, user.Email, true)
	return s.issueTokens(ctx, user)
}

// Refresh exchanges a stored, unrevoked refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", models.NewUnauthenticatedError("Invalid refresh token")
	}

	stored, err := s.tokens.Get(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if stored == nil || !stored.IsUsable(s.now()) || stored.UserID != claims.UserID {
		s.audit.LogTokenRefresh(ctx, claims.UserID, false)
		return "", models.NewUnauthenticatedError("Invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return "", models.NewUnauthenticatedError("User not found")
		}
		return "", err
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return "", models.NewInternalError("Failed to generate access token", err)
	}

	s.audit.LogTokenRefresh(ctx, user.ID, true)
	return token, nil
}

// Logout revokes the given refresh token. An empty token only records the
// logout.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
			return err
		}
	}
	s.audit.LogLogout(ctx, userID)
	return nil
}

// Me returns the caller's account
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// AccessTokenExpiry is the lifetime of issued access tokens
func (s *AuthService) AccessTokenExpiry() time.Duration {
	return s.jwt.AccessTokenExpiry()
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, models.NewInternalError("Failed to generate access token", err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, models.NewInternalError("Failed to generate refresh token", err)
	}

	meta := RequestMetaFrom(ctx)
	expiresAt := s.now().Add(s.jwt.RefreshTokenExpiry())
	if err := s.tokens.Store(ctx, user.ID, refreshToken, meta.IPAddress, meta.UserAgent, expiresAt); err != nil {
		return nil, err
	}

	return &AuthResult{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwt.AccessTokenExpiry().Seconds()),
		User:         user.Summary(),
	}, nil
}
