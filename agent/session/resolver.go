package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const defaultKeyPrefix = "chat_session:"

// Resolver maps an external conversation key (for example a chat platform id)
// to a durable session id that is safe to use as a checkpoint key.
type Resolver struct {
	rdb    redis.Cmdable
	prefix string
	newID  func() string
}

type ResolverOption func(*Resolver)

func WithResolverPrefix(prefix string) ResolverOption {
	return func(r *Resolver) {
		if strings.TrimSpace(prefix) != "" {
			r.prefix = prefix
		}
	}
}

// WithIDGenerator overrides uuid generation, mostly for tests.
func WithIDGenerator(fn func() string) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewResolver(rdb redis.Cmdable, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		rdb:    rdb,
		prefix: defaultKeyPrefix,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) key(conversationKey string) string {
	return r.prefix + conversationKey
}

// Resolve returns the session id bound to conversationKey, minting one on first sight.
// Two concurrent first calls agree on one id because the mint is a SETNX.
func (r *Resolver) Resolve(ctx context.Context, conversationKey string) (string, error) {
	conversationKey = strings.TrimSpace(conversationKey)
	if conversationKey == "" {
		return "", fmt.Errorf("%w: conversation key is required", contractx.ErrValidation)
	}
	key := r.key(conversationKey)

	id, err := r.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, redis.Nil):
		logx.Error().Err(err).Str("key", key).Msg("failed to read session id")
		return "", errx.Persistence(err, "resolve session")
	}

	candidate := r.newID()
	ok, err := r.rdb.SetNX(ctx, key, candidate, 0).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to mint session id")
		return "", errx.Persistence(err, "resolve session")
	}
	if ok {
		logx.Info().Str("conversation_key", conversationKey).Str("session_id", candidate).Msg("session created")
		return candidate, nil
	}

	// Lost the race; someone else stored an id between GET and SETNX.
	id, err = r.rdb.Get(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to re-read session id")
		return "", errx.Persistence(err, "resolve session")
	}
	return id, nil
}

// Reset always mints and stores a fresh session id. The previous id's checkpoint is orphaned.
func (r *Resolver) Reset(ctx context.Context, conversationKey string) (string, error) {
	conversationKey = strings.TrimSpace(conversationKey)
	if conversationKey == "" {
		return "", fmt.Errorf("%w: conversation key is required", contractx.ErrValidation)
	}
	key := r.key(conversationKey)
	id := r.newID()
	if err := r.rdb.Set(ctx, key, id, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to reset session id")
		return "", errx.Persistence(err, "reset session")
	}
	logx.Info().Str("conversation_key", conversationKey).Str("session_id", id).Msg("session reset")
	return id, nil
}
