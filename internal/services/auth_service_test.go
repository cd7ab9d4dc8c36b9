package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-backend/internal/database"
	"github.com/travelhub/booking-backend/internal/models"
	"github.com/travelhub/booking-backend/pkg/jwt"
	"github.com/travelhub/booking-backend/pkg/validator"
	"golang.org/x/crypto/bcrypt"
)

// memoryUserStore is an in-memory UserStore
type memoryUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[uuid.UUID]*models.User)}
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range s.users {
		if u.Email == user.Email {
			return database.ErrEmailTaken
		}
	}
	user.ID = uuid.New()
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.CreatedAt = time.Now()
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *memoryUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, models.NewNotFoundError("User")
}

func (s *memoryUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.NewNotFoundError("User")
}

func (s *memoryUserStore) EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return u.ID != excludeID, nil
}

func (s *memoryUserStore) UpdateProfile(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *user
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	s.users[user.ID] = &c
	return nil
}

func (s *memoryUserStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.NewNotFoundError("User")
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memoryUserStore) List(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *memoryUserStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memoryUserStore) add(t *testing.T, email, password string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Name: "Test User", Email: email, PasswordHash: string(hash), Role: role}
	require.NoError(t, s.Create(context.Background(), user))
	return user
}

// memoryTokenStore is an in-memory RefreshTokenStore keyed by raw token
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]*models.RefreshToken)}
}

func (s *memoryTokenStore) Store(ctx context.Context, userID uuid.UUID, token, ip, ua string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := &models.RefreshToken{ID: uuid.New(), UserID: userID, ExpiresAt: expiresAt}
	rt.IPAddress.String, rt.IPAddress.Valid = ip, ip != ""
	rt.UserAgent.String, rt.UserAgent.Valid = ua, ua != ""
	s.tokens[token] = rt
	return nil
}

func (s *memoryTokenStore) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.tokens[token]; ok {
		c := *rt
		return &c, nil
	}
	return nil, nil
}

func (s *memoryTokenStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.tokens[token]; ok && !rt.RevokedAt.Valid {
		rt.RevokedAt.Time, rt.RevokedAt.Valid = time.Now(), true
	}
	return nil
}

func (s *memoryTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.tokens {
		if rt.UserID == userID && !rt.RevokedAt.Valid {
			rt.RevokedAt.Time, rt.RevokedAt.Valid = time.Now(), true
		}
	}
	return nil
}

type authFixture struct {
	service *AuthService
	users   *memoryUserStore
	tokens  *memoryTokenStore
	jwt     *jwt.Service
	audit   *memoryAuditSink
}

func setupAuthService(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:  newMemoryUserStore(),
		tokens: newMemoryTokenStore(),
		jwt:    jwt.NewService("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour),
		audit:  &memoryAuditSink{},
	}
	logger := testLogger()
	f.service = NewAuthService(f.users, f.tokens, f.jwt, validator.New(), bcrypt.MinCost, NewAuditService(f.audit, logger), logger)
	return f
}

func TestRegister(t *testing.T) {
	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "198.51.100.4", UserAgent: chromeUA})
	f := setupAuthService(t)

	result, err := f.service.Register(ctx, models.RegisterRequest{
		Name:     "Ada Obi",
		Email:    "Ada@Example.com",
		Password: "correct-horse",
		Phone:    "0801 234 5678",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", result.User.Email)
	assert.Equal(t, models.RoleUser, result.User.Role)
	assert.Equal(t, int64(900), result.ExpiresIn)

	claims, err := f.jwt.ValidateAccessToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)

	stored, err := f.tokens.Get(ctx, result.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "198.51.100.4", stored.IPAddress.String)

	user, err := f.users.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "08012345678", user.Phone)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	t.Run("Duplicate Email", func(t *testing.T) {
		_, err := f.service.Register(ctx, models.RegisterRequest{Name: "Other", Email: "ADA@example.com", Password: "another-pass"})
		require.Error(t, err)
		assert.True(t, models.IsKind(err, models.KindValidation))
		assert.Equal(t, "User already exists", err.Error())
	})

	t.Run("Short Password", func(t *testing.T) {
		_, err := f.service.Register(ctx, models.RegisterRequest{Name: "Short", Email: "short@example.com", Password: "abc"})
		assert.True(t, models.IsKind(err, models.KindValidation))
	})

	assert.Equal(t, "register", f.audit.actions()[0])
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := setupAuthService(t)
	f.users.add(t, "admin@example.com", "s3cret-pass", models.RoleAdmin)

	result, err := f.service.Login(ctx, models.LoginRequest{Email: "admin@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, result.User.Role)

	claims, err := f.jwt.ValidateAccessToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)

	_, err = f.service.Login(ctx, models.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	assert.True(t, models.IsKind(err, models.KindUnauthenticated))

	_, err = f.service.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	assert.Equal(t, "Invalid credentials", err.Error())

	assert.Equal(t, []string{"login", "login_failed", "login_failed"}, f.audit.actions())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupAuthService(t)
	user := f.users.add(t, "ada@example.com", "s3cret-pass", models.RoleUser)

	result, err := f.service.Login(ctx, models.LoginRequest{Email: user.Email, Password: "s3cret-pass"})
	require.NoError(t, err)

	t.Run("Valid", func(t *testing.T) {
		token, err := f.service.Refresh(ctx, result.RefreshToken)
		require.NoError(t, err)
		claims, err := f.jwt.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("Access Token Rejected", func(t *testing.T) {
		_, err := f.service.Refresh(ctx, result.Token)
		assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	})

	t.Run("Unknown Token", func(t *testing.T) {
		token, err := f.jwt.GenerateRefreshToken(user.ID)
		require.NoError(t, err)
		_, err = f.service.Refresh(ctx, token)
		assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	})

	t.Run("Revoked After Logout", func(t *testing.T) {
		require.NoError(t, f.service.Logout(ctx, user.ID, result.RefreshToken))
		_, err := f.service.Refresh(ctx, result.RefreshToken)
		assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	})

	t.Run("Expired Record", func(t *testing.T) {
		second, err := f.service.Login(ctx, models.LoginRequest{Email: user.Email, Password: "s3cret-pass"})
		require.NoError(t, err)
		f.service.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		defer func() { f.service.now = time.Now }()

		_, err = f.service.Refresh(ctx, second.RefreshToken)
		assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	})
}

func TestLogoutWithoutToken(t *testing.T) {
	f := setupAuthService(t)
	id := uuid.New()

	require.NoError(t, f.service.Logout(context.Background(), id, ""))
	assert.Equal(t, []string{"logout"}, f.audit.actions())
}

func TestMe(t *testing.T) {
	f := setupAuthService(t)
	user := f.users.add(t, "ada@example.com", "s3cret-pass", models.RoleUser)

	got, err := f.service.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = f.service.Me(context.Background(), uuid.New())
	assert.True(t, models.IsKind(err, models.KindNotFound))
}
