package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cvbank/cvbank-backend/internal/auth/jwt"
	"github.com/cvbank/cvbank-backend/internal/auth/repository"
	"github.com/cvbank/cvbank-backend/internal/auth/service"
	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
	"github.com/cvbank/cvbank-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*repository.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*repository.User{}}
}

func (m *memoryUsers) Create(ctx context.Context, u *repository.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return errors.Conflict("a user with this email already exists")
		}
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.NotFound("user")
}

func (m *memoryUsers) GetByID(ctx context.Context, id string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errors.NotFound("user")
}

func jwtConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "cvbank",
	}
}

type fixture struct {
	users *memoryUsers
	jwt   *jwt.Manager
	pub   *testutil.MockPublisher
	svc   *service.AuthService
}

func newFixture() *fixture {
	f := &fixture{
		users: newMemoryUsers(),
		jwt:   jwt.NewManager(jwtConfig()),
		pub:   testutil.NewMockPublisher(),
	}
	f.svc = service.NewAuthService(f.users, f.jwt, logger.Nop(),
		service.WithBcryptCost(bcrypt.MinCost),
		service.WithPublisher(f.pub),
	)
	return f
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, first, last string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"  Jane   Mary  Doe ", "Jane", "Mary Doe"},
		{"Cher", "Cher", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := service.SplitName(tt.name)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)
		})
	}
}

func TestSignup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "Jane Mary Doe", Email: " Jane@Example.COM ", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, "Jane", res.User.FirstName)
	assert.Equal(t, "Mary Doe", res.User.LastName)
	assert.Equal(t, "jane@example.com", res.User.Email)
	assert.True(t, res.User.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("secret1")))
	require.NotNil(t, res.Tokens)

	claims, err := f.jwt.ValidateAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	events := f.pub.Events(messaging.EventUserRegistered)
	require.Len(t, events, 1)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "Other", Email: "JANE@example.com", Password: "secret2"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))
		assert.Contains(t, err.Error(), "User with this email already exists")
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "   ", Email: "x@example.com", Password: "secret2"})
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		res, err := f.svc.Login(ctx, &service.LoginRequest{Email: "JANE@example.com", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", res.User.Email)
		_, err = f.jwt.ValidateRefreshToken(res.Tokens.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Login(ctx, &service.LoginRequest{Email: "jane@example.com", Password: "nope"})
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.svc.Login(ctx, &service.LoginRequest{Email: "who@example.com", Password: "secret1"})
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	})
}

func TestAuthenticate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		s, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken, "")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, s.User.ID)
		assert.Empty(t, s.RefreshedAccessToken)
	})

	t.Run("missing access token refreshes", func(t *testing.T) {
		s, err := f.svc.Authenticate(ctx, "", res.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, s.User.ID)
		require.NotEmpty(t, s.RefreshedAccessToken)

		claims, err := f.jwt.ValidateAccessToken(s.RefreshedAccessToken)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, claims.UserID)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, res.Tokens.RefreshToken, "")
		assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
	})

	t.Run("garbage tokens", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, "garbage", "garbage")
		assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
	})

	t.Run("unknown user", func(t *testing.T) {
		pair, err := f.jwt.GenerateTokenPair(jwt.UserInfo{ID: "65f1a2b3c4d5e6f7a8b9c0aa"})
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
		assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
	})
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, &service.SignupRequest{Name: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)
	f.users.users[res.User.ID].IsActive = false

	_, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
}
