// Package lock provides a cross-process run lock for the review trigger so
// that replicas sharing one store do not notify reviewers twice.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultKey = "recertify:review-run"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock is a SET NX PX lock.  The TTL bounds how long a crashed holder
// can block other replicas.
type RedisRunLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisRunLock(client redis.UniversalClient, key string, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRunLock{client: client, key: key, ttl: ttl, logger: logger.Named("run_lock")}
}

// Acquire tries once to take the lock.  ok=false means another holder has it.
func (l *RedisRunLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The run's ctx may already be cancelled on shutdown.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("release run lock", zap.String("key", l.key), zap.Error(err))
		}
	}
	return release, true, nil
}
