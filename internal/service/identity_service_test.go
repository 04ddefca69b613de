package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

func TestIdentityIssueAndResolve(t *testing.T) {
	svc := NewIdentityService("secret")
	token, expiresAt, err := svc.IssueToken("reviewer@agency", 30*time.Minute)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 5*time.Second)

	actor, err := svc.ResolveToken(token)
	require.NoError(t, err)
	require.Equal(t, "reviewer@agency", actor)
}

func TestIdentityRejectsBadTokens(t *testing.T) {
	svc := NewIdentityService("secret")
	token, _, err := svc.IssueToken("alice", time.Minute)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewIdentityService("other").ResolveToken(token)
		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewIdentityService("secret")
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ResolveToken(token)
		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})

	t.Run("other algorithm", func(t *testing.T) {
		claims := &models.ActorClaims{Actor: "alice", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.ResolveToken(signed)
		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})

	t.Run("no actor", func(t *testing.T) {
		claims := &models.ActorClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.ResolveToken(signed)
		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ResolveToken("not-a-token")
		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})
}

func TestIdentityFallsBackToSubject(t *testing.T) {
	claims := &models.ActorClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "svc-importer", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	actor, err := NewIdentityService("secret").ResolveToken(signed)
	require.NoError(t, err)
	require.Equal(t, "svc-importer", actor)
}

func TestIssueTokenRequiresActor(t *testing.T) {
	_, _, err := NewIdentityService("secret").IssueToken(" ", time.Minute)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
