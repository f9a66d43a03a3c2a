package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/platform/ctxutil"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService turns bearer tokens into request data. Accounts live
// elsewhere; a token only has to be signed with JWT_SECRET_KEY and carry the
// user uuid as its subject.
type AuthService interface {
	SetContextFromToken(ctx context.Context, token string) (context.Context, error)
	IssueToken(userID uuid.UUID) (string, error)
	AccessTTL() time.Duration
}

type AuthConfig struct {
	SecretKey string
	AccessTTL time.Duration
	Issuer    string
}

func AuthConfigFromEnv() AuthConfig {
	return AuthConfig{
		SecretKey: envutil.String("JWT_SECRET_KEY", ""),
		AccessTTL: envutil.Duration("ACCESS_TOKEN_TTL", 24*time.Hour),
		Issuer:    envutil.String("JWT_ISSUER", "intellimix"),
	}
}

type authService struct {
	log *logger.Logger
	cfg AuthConfig
}

func NewAuthService(log *logger.Logger, cfg AuthConfig) (AuthService, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	return &authService{log: log.With("service", "AuthService"), cfg: cfg}, nil
}

func (as *authService) AccessTTL() time.Duration { return as.cfg.AccessTTL }

func (as *authService) IssueToken(userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("issue token: missing user id")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    as.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.cfg.AccessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.cfg.SecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(as.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		as.log.Debug("Rejected token", "error", err)
		return ctx, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID, Token: token}), nil
}
