package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if this locker still holds it, so a
// lock that expired and was re-acquired elsewhere is never released by the
// previous holder.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Client is the subset of Redis the lock requires.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// PairLock guarantees at most one trade execution per token pair across
// cooperating agent instances. The TTL bounds how long a crashed holder
// can block the pair.
type PairLock struct {
	client Client
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// New constructs a pair lock.
func New(client Client, ttl time.Duration, prefix string, logger zerolog.Logger) *PairLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "trade:lock:"
	}
	return &PairLock{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.With().Str("component", "pair_lock").Logger(),
	}
}

// Acquire attempts to take the pair's lock. On success it returns a
// release function; acquired=false means another holder owns the pair.
func (l *PairLock) Acquire(ctx context.Context, inputMint, outputMint string) (release func(), acquired bool, err error) {
	key := l.key(inputMint, outputMint)
	token, err := randomToken()
	if err != nil {
		return nil, false, err
	}

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire pair lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Best-effort: the TTL reclaims the lock if the release fails.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to release pair lock")
		}
	}
	return release, true, nil
}

func (l *PairLock) key(inputMint, outputMint string) string {
	return l.prefix + inputMint + ":" + outputMint
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
