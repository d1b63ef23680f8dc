package core

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"vqagen/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestKeyPoolRoundRobin(t *testing.T) {
	// 1. Three keys, no rate limit
	pool, err := NewKeyPool([]string{"key-alpha-0001", "key-beta-0002", "key-gamma-0003"}, 0, testLogger())
	assert.NoError(t, err)
	assert.Equal(t, 3, pool.Size())

	// 2. Acquire and release six times, recording the order
	ctx := context.Background()
	var order []string
	for i := 0; i < 6; i++ {
		cred, err := pool.Acquire(ctx)
		assert.NoError(t, err)
		order = append(order, cred.Token())
		pool.Release(cred, OutcomeOK)
	}

	// 3. The second cycle repeats the first: strict rotation across all keys
	assert.Equal(t, order[:3], order[3:], "Keys should rotate in a fixed cycle")
	assert.ElementsMatch(t, []string{"key-alpha-0001", "key-beta-0002", "key-gamma-0003"}, order[:3])
}

func TestNewKeyPoolDedupesKeys(t *testing.T) {
	// 1. Blanks and duplicates collapse
	pool, err := NewKeyPool([]string{" key-alpha-0001 ", "key-alpha-0001", "", "key-beta-0002"}, 0, testLogger())
	assert.NoError(t, err)
	assert.Equal(t, 2, pool.Size())

	// 2. Nothing usable is an error
	_, err = NewKeyPool([]string{"", "   "}, 0, testLogger())
	assert.Error(t, err)
}

func TestKeyPoolMutualExclusion(t *testing.T) {
	// 1. Two keys, eight goroutines hammering acquire/release
	pool, err := NewKeyPool([]string{"key-alpha-0001", "key-beta-0002"}, 0, testLogger())
	assert.NoError(t, err)

	var mu sync.Mutex
	held := make(map[string]bool)
	violations := 0

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cred, err := pool.Acquire(ctx)
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				if held[cred.Token()] {
					violations++
				}
				held[cred.Token()] = true
				mu.Unlock()

				time.Sleep(time.Microsecond)

				mu.Lock()
				held[cred.Token()] = false
				mu.Unlock()
				pool.Release(cred, OutcomeOK)
			}
		}()
	}
	wg.Wait()

	// 2. No key was ever held by two callers at once
	assert.Zero(t, violations, "A key must never be checked out twice concurrently")
}

func TestKeyPoolAcquireBlocksUntilRelease(t *testing.T) {
	// 1. A single key, held
	pool, err := NewKeyPool([]string{"key-alpha-0001"}, 0, testLogger())
	assert.NoError(t, err)
	ctx := context.Background()
	cred, err := pool.Acquire(ctx)
	assert.NoError(t, err)

	// 2. A second acquire parks until the key comes back
	got := make(chan *Credential, 1)
	go func() {
		c, err := pool.Acquire(ctx)
		assert.NoError(t, err)
		got <- c
	}()

	select {
	case <-got:
		t.Fatal("Acquire should block while the key is held")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(cred, OutcomeOK)
	select {
	case c := <-got:
		assert.Equal(t, cred.Token(), c.Token())
	case <-time.After(time.Second):
		t.Fatal("Acquire should return once the key is released")
	}
}

func TestKeyPoolRetirement(t *testing.T) {
	pool, err := NewKeyPool([]string{"key-alpha-0001", "key-beta-0002"}, 0, testLogger())
	assert.NoError(t, err)
	ctx := context.Background()

	// 1. Retire the first key
	first, err := pool.Acquire(ctx)
	assert.NoError(t, err)
	pool.Release(first, OutcomeExhausted)
	assert.Equal(t, 1, pool.Active())

	// Double retirement is a no-op
	pool.Release(first, OutcomeExhausted)
	assert.Equal(t, 1, pool.Active())

	// 2. The retired key never re-enters rotation
	for i := 0; i < 4; i++ {
		cred, err := pool.Acquire(ctx)
		assert.NoError(t, err)
		assert.NotEqual(t, first.Token(), cred.Token())
		pool.Release(cred, OutcomeOK)
	}

	// 3. Retiring the last key kills the pool for good
	last, err := pool.Acquire(ctx)
	assert.NoError(t, err)
	pool.Release(last, OutcomeExhausted)
	assert.Equal(t, 0, pool.Active())

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, models.ErrAllKeysExhausted)

	// 4. Stats reflect both retirements
	for _, ks := range pool.Stats() {
		assert.True(t, ks.Retired)
		assert.NotContains(t, ks.Key, "key-alpha-0001", "stats must carry masked keys only")
	}
}

func TestKeyPoolAcquireHonorsCancel(t *testing.T) {
	// 1. The only key is held, so the next acquire can only end via the context
	pool, err := NewKeyPool([]string{"key-alpha-0001"}, 0, testLogger())
	assert.NoError(t, err)
	_, err = pool.Acquire(context.Background())
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyPoolRateLimiterSpacing(t *testing.T) {
	// 1. One key at 600 rpm: one call every 100ms after the initial burst
	pool, err := NewKeyPool([]string{"key-alpha-0001"}, 600, testLogger())
	assert.NoError(t, err)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		cred, err := pool.Acquire(ctx)
		assert.NoError(t, err)
		assert.NoError(t, cred.Wait(ctx))
		pool.Release(cred, OutcomeOK)
	}

	// 2. Three calls need at least two limiter intervals
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond,
		"per-key rate limit should space out consecutive calls")
}
