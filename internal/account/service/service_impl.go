package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   accountdomain.Repository
	parser *jwt.Parser
	secret []byte
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  accountdomain.Repository
}

func NewService(p ServiceParam) accountdomain.Service {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.Clock.Now),
	}
	if issuer := strings.TrimSpace(p.Cfg.AuthJWTIssuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("account.service"),
		repo:   p.Repo,
		parser: jwt.NewParser(opts...),
		secret: []byte(p.Cfg.AuthJWTSecret),
	}
}

// Authenticate implements domain.Service.
func (s *Service) Authenticate(ctx context.Context, token string) (accountdomain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(s.secret) == 0 {
		return accountdomain.Account{}, accountdomain.ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		s.log.Debug("rejected bearer token", zap.Error(err))
		return accountdomain.Account{}, accountdomain.ErrUnauthenticated
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || accountID == 0 {
		return accountdomain.Account{}, accountdomain.ErrUnauthenticated
	}

	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return accountdomain.Account{}, err
	}
	if account == nil || !account.Role.Valid() {
		return accountdomain.Account{}, accountdomain.ErrUnauthenticated
	}
	return *account, nil
}

// GetByID implements domain.Service.
func (s *Service) GetByID(ctx context.Context, id string) (accountdomain.Account, error) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || accountID == 0 {
		return accountdomain.Account{}, accountdomain.ErrInvalidAccount
	}

	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return accountdomain.Account{}, accountdomain.ErrAccountNotFound
		}
		return accountdomain.Account{}, err
	}
	if account == nil {
		return accountdomain.Account{}, accountdomain.ErrAccountNotFound
	}
	return *account, nil
}
