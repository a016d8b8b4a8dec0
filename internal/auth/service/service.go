package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal_context_backend/internal/auth/password"
	"portal_context_backend/internal/auth/repository"
	"portal_context_backend/internal/auth/token"
	"portal_context_backend/internal/auth/validator"
	"portal_context_backend/internal/events"
	"portal_context_backend/platform/config"
	"portal_context_backend/platform/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrTokenExpired = errors.New("token expired")
var ErrTokenInvalid = errors.New("token invalid")
var ErrWeakPassword = errors.New("weak password")
var ErrInvalidEmail = errors.New("invalid email")

const (
	accessTokenType   = "access"
	refreshTokenBytes = 48
)

// Tokens is the result of a successful sign-in or refresh.
type Tokens struct {
	IdentityID      uuid.UUID
	Email           string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Claims are the verified contents of an access token.
type Claims struct {
	IdentityID uuid.UUID
	Email      string
	ExpiresAt  time.Time
}

type Service struct {
	repo     repository.AuthRepository
	cfg      config.AuthServiceConfig
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func New(repo repository.AuthRepository, cfg config.AuthServiceConfig, eventBus events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{repo: repo, cfg: cfg, eventBus: eventBus, log: log, now: time.Now}
}

// Register creates an identity. It is used by the seed tool; the API has no
// public sign-up.
func (s *Service) Register(ctx context.Context, email, plainPassword string) (uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validator.IsValidEmail(email) {
		return uuid.Nil, ErrInvalidEmail
	}
	if !validator.IsStrongPassword(plainPassword) {
		return uuid.Nil, ErrWeakPassword
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return uuid.Nil, err
	}
	identity, err := s.repo.CreateIdentity(ctx, email, hash)
	if err != nil {
		return uuid.Nil, err
	}
	return identity.ID, nil
}

func (s *Service) SignIn(ctx context.Context, email, plainPassword string) (Tokens, error) {
	identity, err := s.repo.GetIdentityByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.DatabaseError("get identity by email", err)
		}
		s.log.AuthEvent("sign_in", email, false, "unknown identity")
		return Tokens{}, ErrInvalidCredentials
	}

	if err := password.Compare(identity.PasswordHash, plainPassword); err != nil {
		s.log.AuthEvent("sign_in", email, false, "password mismatch")
		return Tokens{}, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, identity.ID, identity.Email)
	if err != nil {
		return Tokens{}, err
	}
	s.log.AuthEvent("sign_in", identity.Email, true, "")
	s.publish(ctx, events.IdentitySignedIn{BaseEvent: events.NewBaseEvent(), IdentityID: identity.ID, Email: identity.Email})
	return tokens, nil
}

// Refresh rotates refreshToken: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	hash := token.HashSHA256(refreshToken)
	identityID, expiresAt, err := s.repo.GetRefreshToken(ctx, hash)
	if err != nil {
		return Tokens{}, ErrTokenInvalid
	}

	_ = s.repo.RevokeRefreshToken(ctx, hash)
	if s.now().After(expiresAt) {
		return Tokens{}, ErrTokenExpired
	}

	identity, err := s.repo.GetIdentityByID(ctx, identityID)
	if err != nil {
		return Tokens{}, ErrTokenInvalid
	}
	return s.issueTokens(ctx, identity.ID, identity.Email)
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	hash := token.HashSHA256(refreshToken)
	identityID, _, lookupErr := s.repo.GetRefreshToken(ctx, hash)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil {
		return err
	}
	if lookupErr == nil {
		s.publish(ctx, events.IdentitySignedOut{BaseEvent: events.NewBaseEvent(), IdentityID: identityID})
	}
	return nil
}

// ParseAccessToken verifies an access token issued by this service.
func (s *Service) ParseAccessToken(raw string) (Claims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.GetJWTAccessSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || claims["type"] != accessTokenType {
		return Claims{}, ErrTokenInvalid
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	identityID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrTokenInvalid
	}
	email, _ := claims["email"].(string)

	return Claims{IdentityID: identityID, Email: email, ExpiresAt: exp.Time}, nil
}

// DeleteExpiredRefreshTokens purges refresh tokens that can no longer be used.
func (s *Service) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return n, nil
}

func (s *Service) issueTokens(ctx context.Context, identityID uuid.UUID, email string) (Tokens, error) {
	now := s.now()
	accessExpiresAt := now.Add(s.cfg.GetAccessTokenTTL())
	accessToken, err := s.signJWT(identityID, email, now, accessExpiresAt)
	if err != nil {
		return Tokens{}, err
	}

	refreshToken, err := token.GenerateRandomToken(refreshTokenBytes)
	if err != nil {
		return Tokens{}, err
	}

	hash := token.HashSHA256(refreshToken)
	if err := s.repo.CreateRefreshToken(ctx, identityID, hash, now.Add(s.cfg.GetRefreshTokenTTL())); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		IdentityID:      identityID,
		Email:           email,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExpiresAt,
		RefreshToken:    refreshToken,
	}, nil
}

func (s *Service) signJWT(identityID uuid.UUID, email string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   identityID.String(),
		"email": email,
		"type":  accessTokenType,
		"exp":   expiresAt.Unix(),
		"iat":   issuedAt.Unix(),
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenObj.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, event)
	}
}
