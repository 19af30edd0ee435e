package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	"github.com/smallbiznis/finora/internal/account/repository"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&accountdomain.Account{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, now time.Time) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: "identity"},
		Clock: clock.NewFakeClock(now),
		Repo:  repository.Provide(),
	})
	return svc.(*Service), db
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	account := accountdomain.Account{ID: snowflake.ID(1001), Email: "owner@example.com", Role: accountdomain.RoleUser, CreatedAt: now}
	require.NoError(t, db.Create(&account).Error)

	valid := jwt.RegisteredClaims{
		Subject:   account.ID.String(),
		Issuer:    "identity",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	t.Run("valid token", func(t *testing.T) {
		got, err := svc.Authenticate(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid))
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.Equal(t, accountdomain.RoleUser, got.Role)
	})

	cases := []struct {
		name  string
		token func() string
	}{
		{name: "empty", token: func() string { return "" }},
		{name: "garbage", token: func() string { return "not-a-jwt" }},
		{name: "wrong secret", token: func() string {
			return signToken(t, jwt.SigningMethodHS256, []byte("other"), valid)
		}},
		{name: "wrong algorithm", token: func() string {
			return signToken(t, jwt.SigningMethodHS512, []byte(testSecret), valid)
		}},
		{name: "expired", token: func() string {
			claims := valid
			claims.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
		}},
		{name: "wrong issuer", token: func() string {
			claims := valid
			claims.Issuer = "someone-else"
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
		}},
		{name: "unknown account", token: func() string {
			claims := valid
			claims.Subject = "999"
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
		}},
		{name: "non numeric subject", token: func() string {
			claims := valid
			claims.Subject = "abc"
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tc.token())
			assert.ErrorIs(t, err, accountdomain.ErrUnauthenticated)
		})
	}
}

func TestGetByID(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	require.NoError(t, db.Create(&accountdomain.Account{ID: 7, Email: "a@example.com", Role: accountdomain.RoleAdmin, CreatedAt: now}).Error)

	got, err := svc.GetByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, accountdomain.RoleAdmin, got.Role)

	_, err = svc.GetByID(context.Background(), "8")
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)

	_, err = svc.GetByID(context.Background(), "x")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidAccount)
}

func TestAccountContext(t *testing.T) {
	_, ok := accountdomain.FromContext(context.Background())
	assert.False(t, ok)

	ctx := accountdomain.WithAccount(context.Background(), accountdomain.Account{ID: 5, Role: accountdomain.RoleManager})
	got, ok := accountdomain.FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(5), got.ID)
}
