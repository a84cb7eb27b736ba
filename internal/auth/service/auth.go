package service

import (
	"context"
	"strings"
	"time"

	"github.com/cvbank/cvbank-backend/internal/auth/jwt"
	"github.com/cvbank/cvbank-backend/internal/auth/repository"
	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the hashing cost for new passwords
const DefaultBcryptCost = 12

// EventPublisher is satisfied by *messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// AuthService handles authentication logic
type AuthService struct {
	repo       repository.UserRepository
	jwtManager *jwt.Manager
	publisher  EventPublisher
	bcryptCost int
	logger     *logger.Logger
}

// Option configures an AuthService
type Option func(*AuthService)

// WithBcryptCost overrides DefaultBcryptCost
func WithBcryptCost(cost int) Option {
	return func(s *AuthService) { s.bcryptCost = cost }
}

// WithPublisher emits user.registered after each signup
func WithPublisher(p EventPublisher) Option {
	return func(s *AuthService) { s.publisher = p }
}

// NewAuthService creates a new auth service
func NewAuthService(repo repository.UserRepository, jwtManager *jwt.Manager, log *logger.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		repo:       repo,
		jwtManager: jwtManager,
		bcryptCost: DefaultBcryptCost,
		logger:     log.WithComponent("auth-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupRequest represents a signup request
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is a signed-in user and its fresh token pair.
type AuthResult struct {
	User   *repository.User
	Tokens *jwt.TokenPair
}

// Session is the outcome of authenticating a request. RefreshedAccessToken is
// set when the access token was reissued from the refresh token.
type Session struct {
	User                 *repository.User
	RefreshedAccessToken string
	AccessExpiresAt      time.Time
}

// SplitName splits a full name into first name and the remaining words.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Signup creates an account and signs it in
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	first, last := SplitName(req.Name)
	if first == "" {
		return nil, errors.Validation(map[string]string{"name": "this field is required"})
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return nil, errors.Conflict("User with this email already exists")
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	user := &repository.User{
		ID:           domain.NewID(),
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return nil, errors.Conflict("User with this email already exists")
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user signed up")
	s.publishRegistered(ctx, user)

	return s.issue(user)
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.InvalidCredentials()
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.InvalidCredentials()
	}
	if !user.IsActive {
		return nil, errors.InvalidCredentials()
	}

	return s.issue(user)
}

// Authenticate resolves the caller from its tokens. An access token that is
// missing, expired or invalid is replaced using a valid refresh token. A
// disabled account yields errors.Forbidden.
func (s *AuthService) Authenticate(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	session := &Session{}

	var userID string
	claims, err := s.jwtManager.ValidateAccessToken(accessToken)
	if err == nil {
		userID = claims.UserID
	} else {
		if refreshToken == "" {
			return nil, errors.Unauthenticated("Unauthorized")
		}
		refreshClaims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
		if err != nil {
			return nil, errors.Unauthenticated("Unauthorized")
		}
		userID = refreshClaims.UserID

		token, expiresAt, err := s.jwtManager.GenerateAccessToken(jwt.UserInfo{ID: refreshClaims.UserID, Email: refreshClaims.Email})
		if err != nil {
			return nil, errors.Internal("failed to generate tokens")
		}
		session.RefreshedAccessToken = token
		session.AccessExpiresAt = expiresAt
	}

	user, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Unauthenticated("User not found")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errors.Forbidden("Account is disabled")
	}

	session.User = user
	return session, nil
}

// GetUser returns the account with the given id
func (s *AuthService) GetUser(ctx context.Context, userID string) (*repository.User, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *AuthService) issue(user *repository.User) (*AuthResult, error) {
	tokens, err := s.jwtManager.GenerateTokenPair(jwt.UserInfo{ID: user.ID, Email: user.Email})
	if err != nil {
		return nil, errors.Internal("failed to generate tokens")
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func (s *AuthService) publishRegistered(ctx context.Context, user *repository.User) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(context.WithoutCancel(ctx), messaging.EventUserRegistered, messaging.UserRegisteredEvent{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to publish user.registered")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
