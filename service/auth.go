package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/defi_custody/model"
	"github.com/defi_custody/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// WalletInput is a wallet supplied inline at registration.
type WalletInput struct {
	Address string
	Alias   string
}

// AuthService handles account registration, login and bearer-token
// issuance. The rest of the system only consumes the token's subject
// claim as an opaque owner ID.
type AuthService struct {
	users     *repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(users *repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Register creates a user with at least one wallet and returns a fresh
// session token.
func (s *AuthService) Register(ctx context.Context, username, password string, wallets []WalletInput) (*model.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username: username,
		Password: string(hash),
		IsActive: true,
		Role:     "USER",
	}
	for _, in := range wallets {
		nonce, err := GenerateChallenge()
		if err != nil {
			return nil, "", err
		}
		u.Wallets = append(u.Wallets, model.Wallet{
			Address: strings.ToLower(in.Address),
			Alias:   in.Alias,
			Nonce:   nonce,
		})
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", fmt.Errorf("%w: username or wallet address taken", ErrAlreadyExists)
		}
		return nil, "", err
	}

	token, err := s.generateToken(u)
	if err != nil {
		return nil, "", err
	}
	u.Password = ""
	return u, token, nil
}

// Login checks credentials and returns the user with a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: user %s", ErrNotFound, username)
		}
		return nil, "", err
	}
	if !u.IsActive {
		return nil, "", fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("%w: invalid password", ErrUnauthorized)
	}

	token, err := s.generateToken(u)
	if err != nil {
		return nil, "", err
	}
	u.Password = ""
	return u, token, nil
}

// AutoSignIn resolves a previously issued token's subject back to its
// profile.
func (s *AuthService) AutoSignIn(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}
	u.Password = ""
	return u, nil
}

// ParseToken validates a bearer token and returns its subject.
func (s *AuthService) ParseToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token missing subject", ErrUnauthorized)
	}
	return sub, nil
}

func (s *AuthService) generateToken(u *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      u.ID,
		"role":     u.Role,
		"username": u.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
