package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Account is the authenticated identity written to Redis by the identity
// service at login.
type Account struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
	IsStaff       bool   `json:"is_staff"`
}

type Store interface {
	Get(ctx context.Context, sessionID string) (Account, error)
}

type redisSessionStore struct {
	logger *logrus.Logger
	rc     *goredis.Client
}

func NewRedisSessionStore(logger *logrus.Logger, rc *goredis.Client) Store {
	return &redisSessionStore{
		logger: logger,
		rc:     rc,
	}
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (Account, error) {
	key := fmt.Sprintf("session:%s", sessionID)

	buff, err := s.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "session has expired")
		}
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while reading session")
	}

	var acc Account
	if err := json.Unmarshal(buff, &acc); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while reading session")
	}

	return acc, nil
}

type ctxKey struct{}

func WithAccount(ctx context.Context, acc Account) context.Context {
	return context.WithValue(ctx, ctxKey{}, acc)
}

func GetAccountFromCtx(ctx context.Context) (Account, error) {
	acc, ok := ctx.Value(ctxKey{}).(Account)
	if !ok {
		return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "unauthorized")
	}

	return acc, nil
}
