package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

// IdentityService resolves the opaque actor string carried by HS256 tokens.
// It authenticates only; authorization happens upstream.
type IdentityService struct {
	secret []byte
	now    func() time.Time
}

// NewIdentityService constructs the service.
func NewIdentityService(secret string) *IdentityService {
	return &IdentityService{secret: []byte(secret), now: time.Now}
}

// ResolveToken validates a token and returns its actor identity.
func (s *IdentityService) ResolveToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ActorClaims)
	if !ok || !token.Valid {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	actor := strings.TrimSpace(claims.Identity())
	if actor == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "token carries no actor")
	}
	return actor, nil
}

// IssueToken signs a token for actor, for local tooling and tests.
func (s *IdentityService) IssueToken(actor string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(actor) == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.ActorClaims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
