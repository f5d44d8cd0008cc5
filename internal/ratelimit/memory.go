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
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key in process memory
type MemoryLimiter struct {
	mu              sync.Mutex
	keys            map[string]*rate.Limiter
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiter creates a limiter allowing rps requests per second with
// the given burst. The key map is reset every cleanupInterval; zero means
// ten minutes.
func NewMemoryLimiter(rps float64, burst int, cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	ml := &MemoryLimiter{
		keys:            make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	go ml.cleanup()
	return ml
}

// Allow never fails
func (ml *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	limiter := ml.limiter(key)
	r := limiter.Reserve()

	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Decision{Allowed: false, Limit: ml.burst, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Limit: ml.burst, Remaining: int(limiter.Tokens())}, nil
}

// Stop ends the cleanup goroutine
func (ml *MemoryLimiter) Stop() {
	ml.stopOnce.Do(func() { close(ml.stop) })
}

func (ml *MemoryLimiter) limiter(key string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	limiter, ok := ml.keys[key]
	if !ok {
		limiter = rate.NewLimiter(ml.rps, ml.burst)
		ml.keys[key] = limiter
	}
	return limiter
}

// cleanup drops every bucket each interval so drive-by clients do not
// accumulate. Active clients get a fresh bucket on their next request.
func (ml *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(ml.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ml.mu.Lock()
			ml.keys = make(map[string]*rate.Limiter)
			ml.mu.Unlock()
		case <-ml.stop:
			return
		}
	}
}
