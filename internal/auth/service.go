package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/identity"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenInvalidated = errors.New("token version invalidated")
)

// Service issues and verifies principal tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds a token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for an authenticated principal.
func (s *Service) Login(p identity.Principal) (TokenPair, error) {
	access, err := s.sign(p.ID, p.Address, p.TokenVersion, kindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(p.ID, p.Address, p.TokenVersion, kindRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(sub, addr string, version int, kind, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	return SignHS256(Claims{
		Address: addr,
		Version: version,
		Kind:    kind,
		StandardClaims: jwt.StandardClaims{
			Subject:   sub,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}, []byte(secret))
}

// Verify checks an access token against the principal's current token version.
func (s *Service) Verify(ctx context.Context, token string) (identity.Principal, error) {
	return s.verify(ctx, token, kindAccess, s.cfg.JWTSecret)
}

func (s *Service) verify(ctx context.Context, token, kind, secret string) (identity.Principal, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret), s.now())
	if err != nil || claims.Kind != kind {
		return identity.Principal{}, ErrInvalidToken
	}
	p, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return identity.Principal{}, ErrInvalidToken
	}
	if p.TokenVersion != claims.Version {
		return identity.Principal{}, ErrTokenInvalidated
	}
	return p, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	p, err := s.verify(ctx, refreshToken, kindRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(p.ID, p.Address, p.TokenVersion, kindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	p, err := s.idRepo.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, p.ID, p.TokenVersion+1)
}
