package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vqagen/models"
)

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 90 * time.Second
	defaultRetryDelay  = 4 * time.Second

	progressEvery = 10
)

// DispatchConfig tunes the retry discipline. Zero values fall back to the
// package defaults.
type DispatchConfig struct {
	// MaxAttempts bounds transient attempts per request.
	MaxAttempts int
	// CallTimeout bounds each model call.
	CallTimeout time.Duration
	// RetryDelay sits between transient attempts, plus up to one extra delay
	// of jitter.
	RetryDelay time.Duration
	// Shuffle randomizes dispatch order so slow records spread across keys.
	Shuffle bool
	// Seed fixes the shuffle RNG; 0 seeds from the clock.
	Seed int64
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// Dispatcher fans built requests out over a bounded worker set, one
// credential per in-flight call. KeyPool and ResultStore are the only shared
// mutable structures; retry state stays local to each work item.
type Dispatcher struct {
	pool   *KeyPool
	caller ModelCaller
	store  *ResultStore
	cfg    DispatchConfig
	log    *logrus.Logger
}

// NewDispatcher wires the dispatcher's collaborators; nothing is ambient.
func NewDispatcher(pool *KeyPool, caller ModelCaller, store *ResultStore, cfg DispatchConfig, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, caller: caller, store: store, cfg: cfg.withDefaults(), log: log}
}

// workItem tracks one request through its attempts.
type workItem struct {
	req      *models.Request
	attempts int
	swaps    int
	lastErr  error
}

// Run dispatches every request and produces exactly one Result per request,
// in completion order. The returned error is models.ErrAllKeysExhausted when
// the credential pool died mid-run, or the context error after cancellation;
// per-record failures alone leave it nil.
func (d *Dispatcher) Run(ctx context.Context, requests []*models.Request, concurrency int) ([]*models.Result, error) {
	if len(requests) == 0 {
		d.log.Info("No requests to dispatch")
		return nil, nil
	}

	reqs := requests
	if d.cfg.Shuffle {
		reqs = shuffled(requests, d.cfg.Seed)
	}

	workers := concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > d.pool.Size() {
		d.log.Infof("Concurrency %d capped at %d available credential(s)", workers, d.pool.Size())
		workers = d.pool.Size()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	queue := make(chan *workItem, len(reqs))
	for _, r := range reqs {
		queue <- &workItem{req: r}
	}

	var (
		mu      sync.Mutex
		results = make([]*models.Result, 0, len(reqs))
		pending atomic.Int64
	)
	pending.Store(int64(len(reqs)))

	emit := func(res *models.Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		d.store.Append(res)
	}

	start := time.Now()
	d.log.Infof("🚀 Dispatching %d request(s) across %d worker(s), %d credential(s)",
		len(reqs), workers, d.pool.Size())

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			var sawExhausted bool
			for {
				select {
				case <-ctx.Done():
					return nil
				case item, ok := <-queue:
					if !ok {
						if sawExhausted {
							return models.ErrAllKeysExhausted
						}
						return nil
					}
					res, requeue := d.process(ctx, item)
					if requeue {
						// Capacity equals the request count, so this
						// never blocks.
						queue <- item
						continue
					}
					if res.ErrorKind == models.ErrKindAllExhausted {
						sawExhausted = true
					}
					emit(res)
					left := pending.Add(-1)
					if done := int64(len(reqs)) - left; done%progressEvery == 0 || left == 0 {
						d.log.Infof("Progress: %d/%d complete", done, len(reqs))
					}
					if left == 0 {
						close(queue)
					}
				}
			}
		})
	}
	runErr := g.Wait()

	// Workers stop pulling on cancellation; whatever is still queued gets a
	// terminal failure Result so no request is silently dropped.
	if ctx.Err() != nil {
	drain:
		for {
			select {
			case item, ok := <-queue:
				if !ok {
					break drain
				}
				emit(models.FailureResult(item.req, fmt.Errorf("run canceled: %w", ctx.Err()), item.attempts))
			default:
				break drain
			}
		}
		if runErr == nil {
			runErr = ctx.Err()
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	d.log.Infof("🏁 Run finished: %d/%d succeeded, %d failed in %s",
		succeeded, len(results), len(results)-succeeded, time.Since(start).Round(time.Second))
	for _, ks := range d.pool.Stats() {
		d.log.Infof("Key %s: %d call(s), %d ok, %d failed, retired=%v",
			ks.Key, ks.Uses, ks.Successes, ks.Failures, ks.Retired)
	}
	return results, runErr
}

// process drives one work item to a terminal Result, or asks for a requeue
// after retiring a credential. Transient attempts are bounded by MaxAttempts;
// requeues are bounded by the credential count since retirement is permanent.
func (d *Dispatcher) process(ctx context.Context, item *workItem) (res *models.Result, requeue bool) {
	for {
		cred, err := d.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, models.ErrAllKeysExhausted) {
				detail := err
				if item.lastErr != nil {
					detail = fmt.Errorf("%w (last credential error: %v)", models.ErrAllKeysExhausted, item.lastErr)
				}
				return models.FailureResult(item.req, detail, item.attempts), false
			}
			return models.FailureResult(item.req, fmt.Errorf("run canceled: %w", err), item.attempts), false
		}

		if err := cred.Wait(ctx); err != nil {
			d.pool.Release(cred, OutcomeOK)
			return models.FailureResult(item.req, fmt.Errorf("run canceled: %w", err), item.attempts), false
		}

		item.attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		callStart := time.Now()
		out, callErr := d.caller.Generate(callCtx, cred.Token(), item.req)
		cancel()
		elapsed := time.Since(callStart).Round(time.Millisecond)

		if callErr == nil {
			d.pool.Release(cred, OutcomeOK)
			d.log.Debugf("✅ %s [%s] ok via %s in %s (attempt %d)",
				item.req.ImageID, item.req.Category, cred.Masked(), elapsed, item.attempts)
			return models.SuccessResult(item.req, out, item.attempts), false
		}
		item.lastErr = callErr

		if ctx.Err() != nil {
			d.pool.Release(cred, OutcomeOK)
			return models.FailureResult(item.req, fmt.Errorf("run canceled: %w", ctx.Err()), item.attempts), false
		}

		kind := models.KindOf(callErr)
		switch {
		case models.IsCredentialError(callErr):
			d.pool.Release(cred, OutcomeExhausted)
			item.swaps++
			d.log.Warnf("🔄 %s hit %s on key %s, requeueing for a fresh credential", item.req.ImageID, kind, cred.Masked())
			return nil, true
		case item.attempts < d.cfg.MaxAttempts:
			d.pool.Release(cred, OutcomeError)
			d.log.Warnf("⚠️ %s [%s] attempt %d/%d failed (%s) after %s: %v",
				item.req.ImageID, item.req.Category, item.attempts, d.cfg.MaxAttempts, kind, elapsed, callErr)
			if !d.sleepBetweenAttempts(ctx) {
				return models.FailureResult(item.req, fmt.Errorf("run canceled: %w", ctx.Err()), item.attempts), false
			}
		default:
			d.pool.Release(cred, OutcomeError)
			d.log.Errorf("💀 %s failed after %d attempt(s): %v", item.req.ImageID, item.attempts, callErr)
			return models.FailureResult(item.req, callErr, item.attempts), false
		}
	}
}

// sleepBetweenAttempts applies the fixed retry delay plus jitter, honoring
// cancellation. Returns false when the run was canceled mid-sleep.
func (d *Dispatcher) sleepBetweenAttempts(ctx context.Context) bool {
	delay := d.cfg.RetryDelay
	if delay > time.Millisecond {
		delay += time.Duration(rand.Int63n(int64(delay)))
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// shuffled copies before shuffling; the caller's slice stays untouched.
func shuffled(requests []*models.Request, seed int64) []*models.Request {
	out := make([]*models.Request, len(requests))
	copy(out, requests)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
