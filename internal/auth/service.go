package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"summitpass/internal/shared/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// RoleAdmin is the only role this backend knows. There is one event, one
// operator, no user accounts.
const RoleAdmin = "ADMIN"

type Service interface {
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	ValidateToken(tokenString string) (*JWTClaims, error)
}

type service struct {
	config *config.Config
}

func NewService(cfg *config.Config) Service {
	return &service{config: cfg}
}

func (s *service) Login(_ context.Context, req *LoginRequest) (*AuthResponse, error) {
	// Compare both factors even when the email is wrong so the timing of
	// the response gives nothing away.
	emailMatch := subtle.ConstantTimeCompare([]byte(req.Email), []byte(s.config.Admin.Email)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.config.Admin.PasswordHash), []byte(req.Password))
	if !emailMatch || passErr != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresIn, err := s.generateToken(req.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
	}, nil
}

func (s *service) generateToken(email string) (string, int64, error) {
	now := time.Now()

	claims := JWTClaims{
		Email: email,
		Role:  RoleAdmin,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Admin.JWTExpiresIn)),
			Issuer:    "summitpass",
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Admin.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.config.Admin.JWTExpiresIn.Seconds()), nil
}

func (s *service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.Admin.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
