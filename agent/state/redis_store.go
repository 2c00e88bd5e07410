package state

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

// RedisStore persists ConversationState with a native Redis client.
type RedisStore struct {
	rdb  redis.Cmdable
	opts storeOptions
}

func NewRedisStore(rdb redis.Cmdable, opts ...StoreOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := applyStoreOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, opts: o}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	key, err := redisKey(s.opts.keyPrefix, sessionID)
	if err != nil {
		return nil, err
	}

	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation state from redis")
		return nil, errx.WrapRedis(err)
	}
	return decodeState(payload)
}

// Save writes the whole state with a single SET, so readers never see a partial checkpoint.
func (s *RedisStore) Save(ctx context.Context, st *ConversationState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	key, err := redisKey(s.opts.keyPrefix, st.SessionID)
	if err != nil {
		return err
	}

	if err := s.rdb.Set(ctx, key, payload, s.opts.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save conversation state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := redisKey(s.opts.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete conversation state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*UpstashRedisStore)(nil)
)
