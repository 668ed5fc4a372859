package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker hands out short, best-effort leases so overlapping scheduler
// firings of the same sweep usually skip. Nothing relies on a lease for
// correctness.
type Locker interface {
	// Acquire returns ok == false when somebody else holds name. The
	// returned release func is never nil.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

func noop() {}

// releaseScript deletes the key only if it still carries our token, so an
// expired lease taken over by another worker is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	logger *logrus.Logger
	rc     *goredis.Client
}

func NewRedisLocker(logger *logrus.Logger, rc *goredis.Client) Locker {
	return &redisLocker{
		logger: logger,
		rc:     rc,
	}
}

// Acquire implements Locker.
func (l *redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := "lease:" + name
	token := uuid.NewString()

	ok, err := l.rc.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("lease", name).Warn("failed to acquire lease")
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}

	release := func() {
		// the caller's ctx may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.rc, []string{key}, token).Err(); err != nil {
			l.logger.WithContext(ctx).WithError(err).WithField("lease", name).Warn("failed to release lease")
		}
	}

	return release, true, nil
}

type localLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewLocalLocker is an in-process Locker for single-instance runs and tests.
func NewLocalLocker() Locker {
	return &localLocker{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Acquire implements Locker.
func (l *localLocker) Acquire(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, held := l.leases[name]; held && now.Before(until) {
		return noop, false, nil
	}

	until := now.Add(ttl)
	l.leases[name] = until

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.leases[name].Equal(until) {
			delete(l.leases, name)
		}
	}

	return release, true, nil
}
