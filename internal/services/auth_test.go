package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/platform/ctxutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

func newAuth(t *testing.T, ttl time.Duration) AuthService {
	t.Helper()
	as, err := NewAuthService(logger.Nop(), AuthConfig{SecretKey: "test-secret", AccessTTL: ttl})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return as
}

func TestTokenRoundTrip(t *testing.T) {
	as := newAuth(t, time.Hour)
	userID := uuid.New()
	token, err := as.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	ctx, err := as.SetContextFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if got := ctxutil.UserID(ctx); got != userID {
		t.Fatalf("user id = %s want %s", got, userID)
	}
}

func TestRejectedTokens(t *testing.T) {
	as := newAuth(t, time.Hour)
	other, _ := NewAuthService(logger.Nop(), AuthConfig{SecretKey: "other-secret"})
	foreign, _ := other.IssueToken(uuid.New())

	expired := newAuth(t, time.Nanosecond)
	stale, _ := expired.IssueToken(uuid.New())
	time.Sleep(10 * time.Millisecond)

	notUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte("test-secret"))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: uuid.NewString()}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"wrong secret":   foreign,
		"expired":        stale,
		"non-uuid sub":   notUser,
		"unsigned token": none,
	} {
		if _, err := as.SetContextFromToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err=%v want ErrInvalidToken", name, err)
		}
	}
}

func TestAuthServiceRequiresSecret(t *testing.T) {
	if _, err := NewAuthService(logger.Nop(), AuthConfig{}); err == nil {
		t.Fatalf("empty secret accepted")
	}
}
