package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"vqagen/models"
)

// ReleaseOutcome tells the pool what happened to the credential's call.
type ReleaseOutcome int

const (
	// OutcomeOK returns the credential to rotation after a successful call.
	OutcomeOK ReleaseOutcome = iota
	// OutcomeError returns the credential to rotation after a transient failure.
	OutcomeError
	// OutcomeExhausted retires the credential permanently (quota or auth failure).
	OutcomeExhausted
)

// Credential is one API key under pool management. Held by at most one
// in-flight call at a time; counters are guarded by the owning pool's mutex.
type Credential struct {
	token   string
	limiter *rate.Limiter

	uses      int
	successes int
	failures  int
}

// Token exposes the raw key for the outbound call. Never log it directly.
func (c *Credential) Token() string { return c.token }

// Masked renders the key safe for logs.
func (c *Credential) Masked() string { return maskKey(c.token) }

// Wait blocks until the credential's rate limiter admits one call.
func (c *Credential) Wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// KeyStats is a per-key usage snapshot. Key is already masked.
type KeyStats struct {
	Key       string
	Uses      int
	Successes int
	Failures  int
	Retired   bool
}

// KeyPool hands out credentials under mutual exclusion. The free list is a
// buffered channel: FIFO order gives round-robin rotation, and receiving
// doubles as the blocking acquire. Retirement bookkeeping sits behind the
// mutex; done closes once every key is retired, which fails the whole run.
type KeyPool struct {
	free chan *Credential
	done chan struct{}
	log  *logrus.Logger

	mu      sync.Mutex
	all     []*Credential
	retired map[string]bool
}

// NewKeyPool builds a pool over the given key strings, dropping blanks and
// duplicates. rpm > 0 attaches a per-key rate limiter at that many requests
// per minute.
func NewKeyPool(keys []string, rpm int, log *logrus.Logger) (*KeyPool, error) {
	uniq := dedupeKeys(keys)
	if len(uniq) == 0 {
		return nil, fmt.Errorf("key pool: no credentials provided")
	}

	p := &KeyPool{
		free:    make(chan *Credential, len(uniq)),
		done:    make(chan struct{}),
		log:     log,
		retired: make(map[string]bool, len(uniq)),
	}
	for _, k := range uniq {
		cred := &Credential{token: k}
		if rpm > 0 {
			cred.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
		p.all = append(p.all, cred)
		p.free <- cred
	}
	log.Infof("🔑 Key pool ready: %d credential(s), %d rpm per key", len(uniq), rpm)
	return p, nil
}

// Size reports the total credential count, retired keys included.
func (p *KeyPool) Size() int { return len(p.all) }

// Active reports how many credentials remain in rotation.
func (p *KeyPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all) - len(p.retired)
}

// Acquire blocks until a credential frees up. Fails with
// models.ErrAllKeysExhausted once every credential has been retired, or with
// the context error on cancellation.
func (p *KeyPool) Acquire(ctx context.Context) (*Credential, error) {
	select {
	case cred := <-p.free:
		p.mu.Lock()
		cred.uses++
		p.mu.Unlock()
		return cred, nil
	case <-p.done:
		return nil, models.ErrAllKeysExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a credential to the back of the rotation, or retires it
// permanently when the outcome is quota/auth failure. Acquire and Release are
// the only mutation points of pool state.
func (p *KeyPool) Release(cred *Credential, outcome ReleaseOutcome) {
	p.mu.Lock()
	switch outcome {
	case OutcomeExhausted:
		cred.failures++
		if p.retired[cred.token] {
			p.mu.Unlock()
			return
		}
		p.retired[cred.token] = true
		remaining := len(p.all) - len(p.retired)
		if remaining == 0 {
			close(p.done)
		}
		p.mu.Unlock()

		p.log.Warnf("💀 Key %s retired, %d/%d credential(s) remain", cred.Masked(), remaining, len(p.all))
		if remaining == 0 {
			p.log.Errorf("🔥 All %d credential(s) exhausted", len(p.all))
		}
		return
	case OutcomeError:
		cred.failures++
	default:
		cred.successes++
	}
	p.mu.Unlock()

	// Never blocks: capacity equals the credential count.
	p.free <- cred
}

// Stats snapshots per-key usage for the end-of-run summary.
func (p *KeyPool) Stats() []KeyStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]KeyStats, 0, len(p.all))
	for _, c := range p.all {
		out = append(out, KeyStats{
			Key:       maskKey(c.token),
			Uses:      c.uses,
			Successes: c.successes,
			Failures:  c.failures,
			Retired:   p.retired[c.token],
		})
	}
	return out
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// maskKey keeps only a recognizable stub of a key for logs.
func maskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:3] + "***" + key[len(key)-4:]
}
