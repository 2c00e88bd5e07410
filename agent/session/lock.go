package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// Locker guards a session so only one turn runs against it at a time.
// Acquire returns contract.ErrTurnInProgress when the session is already held.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(context.Context), err error)
}

const (
	defaultLockPrefix = "turn_lock:"
	defaultLockTTL    = 2 * time.Minute
)

// releaseScript deletes the lock only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{rdb: rdb, prefix: defaultLockPrefix, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(context.Context), error) {
	key := l.prefix + sessionID
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to acquire turn lock")
		return nil, errx.Persistence(err, "acquire turn lock")
	}
	if !ok {
		return nil, contractx.ErrTurnInProgress
	}

	release := func(ctx context.Context) {
		if err := l.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logx.Warn().Err(err).Str("key", key).Msg("failed to release turn lock")
		}
	}
	return release, nil
}

// MemoryLocker is a process-local Locker for tests and single-instance runs.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, sessionID string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, contractx.ErrTurnInProgress
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	return func(context.Context) {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
