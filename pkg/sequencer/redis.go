package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisNextScript allocates the next commit position atomically.
// KEYS[1] = sequence counter
// KEYS[2] = last issued timestamp (unix microseconds)
// Returns {sequence, timestamp_us}.
var redisNextScript = redis.NewScript(`
local seq = redis.call("INCR", KEYS[1])
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local last = tonumber(redis.call("GET", KEYS[2]) or "0")
if now <= last then
    now = last + 1
end
redis.call("SET", KEYS[2], now)
return {seq, now}
`)

// redisSeedScript raises the counter to at least ARGV[1].
var redisSeedScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local min = tonumber(ARGV[1])
if cur < min then
    redis.call("SET", KEYS[1], min)
    return min
end
return cur
`)

// Redis is a Sequencer shared by every node pointed at the same Redis.
type Redis struct {
	client redis.Scripter
	prefix string
}

// NewRedis creates a sequencer using keys under prefix (e.g. "evidentia").
func NewRedis(client redis.Scripter, prefix string) *Redis {
	if prefix == "" {
		prefix = "evidentia"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) keys() []string {
	return []string{r.prefix + ":commit:seq", r.prefix + ":commit:ts"}
}

// Seed raises the shared counter to at least min, typically the store's
// MaxSequence, so a fresh Redis never reissues committed positions.
func (r *Redis) Seed(ctx context.Context, min uint64) error {
	if err := redisSeedScript.Run(ctx, r.client, r.keys()[:1], min).Err(); err != nil {
		return fmt.Errorf("redis sequencer seed: %w", err)
	}
	return nil
}

func (r *Redis) Next(ctx context.Context) (ledger.Commit, error) {
	res, err := redisNextScript.Run(ctx, r.client, r.keys()).Result()
	if err != nil {
		return ledger.Commit{}, fmt.Errorf("redis sequencer error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return ledger.Commit{}, fmt.Errorf("invalid response from lua script")
	}
	seq, ok1 := results[0].(int64)
	us, ok2 := results[1].(int64)
	if !ok1 || !ok2 || seq <= 0 {
		return ledger.Commit{}, fmt.Errorf("invalid response from lua script: %v", results)
	}

	return ledger.Commit{
		Sequence:  uint64(seq),
		TxID:      uuid.New().String(),
		Timestamp: time.UnixMicro(us).UTC(),
	}, nil
}
