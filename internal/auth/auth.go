package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/heshamtamer/RPM/internal/db"
	"github.com/heshamtamer/RPM/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// errCorruptCredential marks a stored password hash that bcrypt cannot
	// parse. It never reaches a client; verification fails closed instead.
	errCorruptCredential = errors.New("stored credential is corrupt")
)

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims is the narrower claim set carried by refresh tokens.
type RefreshClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// UserStore is the persistence contract the auth service needs. Each call
// is a single-row read or write; the store holds at most one refresh token
// value per user and an overwrite atomically supersedes the previous one.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByID(ctx context.Context, id int64) (*db.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*db.User, error)
	SetRefreshToken(ctx context.Context, userID int64, token string) error
	ClearRefreshToken(ctx context.Context, userID int64) error
}

// Config holds the signing keys and lifetimes for both token classes.
// It is built once at startup and read-only afterwards. The keys are
// deliberately separate: compromise of one token class must not allow
// forging the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type RegisteredUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Service struct {
	users UserStore
	cfg   Config
	log   *logger.Logger
}

func NewService(users UserStore, cfg Config) *Service {
	return &Service{
		users: users,
		cfg:   cfg,
		log:   logger.Default().WithComponent("auth"),
	}
}

// Register creates a new user. The response carries only the id and email;
// the password hash never leaves the store.
func (s *Service) Register(ctx context.Context, username, email, password string) (*RegisteredUser, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	return &RegisteredUser{ID: user.ID, Email: user.Email}, nil
}

// Login verifies the credentials and issues a fresh token pair. The refresh
// token is persisted as the user's single current session; any previously
// issued refresh token is superseded by the overwrite.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Same error as a wrong password so responses don't leak
			// which emails are registered.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, errCorruptCredential) {
			s.log.Error(ctx, "unreadable password hash, failing verification closed", err, map[string]interface{}{
				"user_id": user.ID,
			})
		}
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.issueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.issueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token must both verify against the refresh key and be the exact
// value currently stored for its user. The refresh token itself is not
// rotated here; it stays valid until the next login or natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}

	claims, err := s.verifyRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}

	if claims.UserID != user.ID {
		return "", ErrInvalidToken
	}

	return s.issueAccessToken(user)
}

// Logout clears the stored refresh token, immediately invalidating any
// outstanding refresh token for the user.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	err := s.users.ClearRefreshToken(ctx, userID)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil
	}
	return err
}

// ValidateAccessToken checks signature and expiry of an access token and
// returns its claims.
func (s *Service) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.cfg.AccessSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) issueAccessToken(user *db.User) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "rpm",
			// iat has second precision, so the jti is what keeps two
			// tokens minted in the same second distinct.
			ID: uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.AccessSecret)
}

func (s *Service) issueRefreshToken(userID int64) (string, error) {
	now := time.Now()
	claims := &RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "rpm",
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.RefreshSecret)
}

func (s *Service) verifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.cfg.RefreshSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashPassword hashes a plaintext password with bcrypt. The salt is random
// per call, so two hashes of the same password differ while both verify.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a stored bcrypt hash.
// A mismatch returns ErrInvalidCredentials; an unreadable hash returns a
// corrupt-credential error so callers can log it, but never a panic.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return fmt.Errorf("%w: %v", errCorruptCredential, err)
}
