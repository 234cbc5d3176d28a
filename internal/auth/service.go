package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrWrongTokenKind     = errors.New("wrong token kind")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Claims struct {
	Email string `json:"email"`
	Kind  string `json:"typ"`
	jwt.RegisteredClaims
}

type Service struct {
	db    database.AuthStore
	cfg   config.JWTConfig
	clock clock.Clock
}

func NewService(db database.AuthStore, cfg config.JWTConfig, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    db,
		cfg:   cfg,
		clock: clk,
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	// Validate input
	if err := s.validateRegistrationRequest(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.db.CreateUser(ctx, req.Email, req.Username, string(hash))
	if err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return nil, fmt.Errorf("email already used: %w", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{User: *user, TokenPair: *tokens}, nil
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	// Get user by email
	user, err := s.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Only one refresh token lineage per user survives a login.
	if err := s.db.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	// Remove sensitive data
	user.PasswordHash = ""

	return &models.LoginResponse{User: *user, TokenPair: *tokens}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token can be redeemed once.
func (s *Service) Refresh(ctx context.Context, raw string) (*models.TokenPair, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, ErrWrongTokenKind
	}

	record, err := s.db.GetRefreshToken(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token not found", ErrInvalidToken)
	}
	if record.UserID != claims.Subject || record.RevokedAt != nil || !record.ExpiresAt.After(s.clock.Now()) {
		return nil, fmt.Errorf("%w: refresh token not active", ErrInvalidToken)
	}

	revoked, err := s.db.RevokeRefreshToken(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !revoked {
		return nil, fmt.Errorf("%w: refresh token already used", ErrInvalidToken)
	}

	user, err := s.db.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	return s.issueTokens(ctx, user)
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.db.RevokeUserRefreshTokens(ctx, userID)
}

// VerifyAccess checks a bearer token and returns the user id it was issued
// to. Refresh tokens are rejected with ErrWrongTokenKind.
func (s *Service) VerifyAccess(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrMissingToken
	}
	claims, err := s.parse(raw)
	if err != nil {
		return "", err
	}
	switch claims.Kind {
	case KindAccess:
	case KindRefresh:
		return "", ErrWrongTokenKind
	default:
		return "", fmt.Errorf("%w: undeclared token kind", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (s *Service) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if c, ok := token.Claims.(*Claims); ok && c.Kind == KindRefresh {
			return s.cfg.RefreshSecret, nil
		}
		return s.cfg.AccessSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	now := s.clock.Now()

	access, err := s.sign(Claims{
		Email: user.Email,
		Kind:  KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	record := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
	refresh, err := s.sign(Claims{
		Email: user.Email,
		Kind:  KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
	}, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.db.SaveRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (s *Service) validateRegistrationRequest(req *models.RegisterRequest) error {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return fmt.Errorf("missing required fields")
	}

	// Validate email format
	if !isValidEmail(req.Email) {
		return fmt.Errorf("invalid email format")
	}

	// Validate password strength
	if len(req.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	// Sanitize and validate username
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 || len(req.Username) > 30 {
		return fmt.Errorf("username must be 3-30 characters long")
	}

	return nil
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
