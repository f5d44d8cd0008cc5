// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucket refills continuously at rate tokens per millisecond up to
// capacity. It returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate_per_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now_ms
end

local elapsed = math.max(0, now_ms - ts)
tokens = math.min(capacity, tokens + elapsed * rate_per_ms)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
elseif rate_per_ms > 0 then
	retry_ms = math.ceil((1 - tokens) / rate_per_ms)
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now_ms)
redis.call('EXPIRE', key, ttl_seconds)

return {allowed, math.floor(tokens), retry_ms}
`)

// IPKeyPrefix namespaces the per-client-IP buckets, giving keys of the
// form ratelimit:ip:<ip>.
const IPKeyPrefix = "ratelimit:ip"

// RedisLimiter shares token buckets between instances through Redis
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	rps    float64
	burst  int
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisLimiter creates a limiter backed by client. Keys are stored as
// <prefix>:<key>.
func NewRedisLimiter(client redis.Scripter, prefix string, rps float64, burst int) *RedisLimiter {
	if prefix == "" {
		prefix = IPKeyPrefix
	}
	ttl := time.Minute
	if rps > 0 {
		if fill := time.Duration(float64(burst)/rps*float64(time.Second)) * 2; fill > ttl {
			ttl = fill
		}
	}
	return &RedisLimiter{client: client, prefix: prefix, rps: rps, burst: burst, ttl: ttl, now: time.Now}
}

func (rl *RedisLimiter) key(k string) string {
	return rl.prefix + ":" + k
}

// Allow runs the bucket script. Callers decide what to do on error.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := tokenBucket.Run(ctx, rl.client, []string{rl.key(key)},
		rl.now().UnixMilli(),
		rl.burst,
		rl.rps/1000,
		int64(math.Ceil(rl.ttl.Seconds())),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      rl.burst,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
