package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"summitpass/internal/shared/config"
)

const (
	testAdminEmail    = "ops@summitpass.io"
	testAdminPassword = "correct horse battery staple"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}
	return &config.Config{
		Admin: config.AdminConfig{
			Email:        testAdminEmail,
			PasswordHash: string(hash),
			JWTSecret:    "test-jwt-secret",
			JWTExpiresIn: time.Hour,
		},
	}
}

func TestLoginIssuesAdminToken(t *testing.T) {
	svc := NewService(testConfig(t))

	resp, err := svc.Login(context.Background(), &LoginRequest{
		Email:    testAdminEmail,
		Password: testAdminPassword,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("empty access token")
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expiresIn = %d, want 3600", resp.ExpiresIn)
	}

	claims, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Email != testAdminEmail {
		t.Errorf("claims email = %q, want %q", claims.Email, testAdminEmail)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("claims role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.Type != "access" {
		t.Errorf("claims type = %q, want access", claims.Type)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewService(testConfig(t))

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong email", "someone@example.com", testAdminPassword},
		{"wrong password", testAdminEmail, "nope"},
		{"both wrong", "someone@example.com", "nope"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), &LoginRequest{
				Email:    tc.email,
				Password: tc.password,
			})
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	cfg := testConfig(t)
	issuer := NewService(cfg)

	resp, err := issuer.Login(context.Background(), &LoginRequest{
		Email:    testAdminEmail,
		Password: testAdminPassword,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	otherCfg := testConfig(t)
	otherCfg.Admin.JWTSecret = "a-different-secret"
	if _, err := NewService(otherCfg).ValidateToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewService(testConfig(t))

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: err = %v, want ErrInvalidToken", token, err)
		}
	}
}
