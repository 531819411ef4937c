// Package bridge is the facade the toolkit's orchestration layers use
// to run legacy automation scripts as supervised subprocesses.
//
// An execution flows: security validation → cache lookup (if the
// request opts in) → pool slot acquisition → subprocess run → output
// decoding → cache store → slot release. The slot is released on every
// exit path, and a request that fails validation never reaches a
// subprocess.
//
// Execute never returns an error for operational failures: rejections,
// saturation, timeouts, and script failures are all ordinary Result
// values with Status set accordingly. Only a malformed configuration
// is an error, at construction time.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m365kit/scriptbridge/cache"
	"github.com/m365kit/scriptbridge/codec"
	"github.com/m365kit/scriptbridge/config"
	"github.com/m365kit/scriptbridge/decode"
	"github.com/m365kit/scriptbridge/logging"
	"github.com/m365kit/scriptbridge/pool"
	"github.com/m365kit/scriptbridge/runner"
	"github.com/m365kit/scriptbridge/security"
)

// processRunner is the spawn seam; tests substitute a spy.
type processRunner interface {
	Run(ctx context.Context, spec runner.Spec) (*runner.Outcome, error)
}

// Bridge composes the gate, pool, runner, decoder, and cache behind
// two operations: Execute and ExecuteBatch. Multiple independently
// configured bridges can coexist in one process.
type Bridge struct {
	cfg    *config.Config
	gate   *security.Gate
	pool   *pool.Pool
	cache  *cache.Cache
	runner processRunner
	logger *slog.Logger
}

// New constructs a bridge from a validated configuration. The
// allow-lists are captured here and never re-read.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gate, err := security.NewGate(cfg.AllowedRoots, cfg.AllowShellMetachars,
		logging.WithComponent(logger, "security"))
	if err != nil {
		return nil, err
	}

	p, err := pool.New(cfg.PoolSize)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if cfg.CachePath != "" {
		store, err = cache.NewBoltStore(cfg.CachePath)
		if err != nil {
			return nil, err
		}
	} else {
		store = cache.NewMemoryStore()
	}

	c, err := cache.New(store, cfg.SweepSchedule, logging.WithComponent(logger, "cache"))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Bridge{
		cfg:    cfg,
		gate:   gate,
		pool:   p,
		cache:  c,
		runner: runner.New(cfg.Interpreters, logging.WithComponent(logger, "runner")),
		logger: logger,
	}, nil
}

// Execute runs one script and returns its result. The context is an
// external cancellation signal; cancellation and the request's own
// timeout both kill the subprocess tree and yield a timed-out result,
// distinguished by the Reason field.
func (b *Bridge) Execute(ctx context.Context, req Request) *Result {
	start := time.Now()
	logger := b.logger.With(slog.String("script", req.ScriptPath))

	format := req.OutputFormat
	if format == "" {
		format = FormatRaw
	}
	if !format.Valid() {
		return &Result{
			Status:   StatusRejected,
			Reason:   ReasonInvalidFormat,
			Detail:   "unknown output format: " + string(format),
			ExitCode: -1,
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(b.cfg.DefaultTimeoutSeconds) * time.Second
	}
	if max := time.Duration(b.cfg.MaxTimeoutSeconds) * time.Second; timeout > max {
		timeout = max
	}

	outcome := b.gate.Validate(req.ScriptPath, req.Parameters)
	if !outcome.OK {
		return &Result{
			Status:   StatusRejected,
			Reason:   outcome.Reason,
			Detail:   outcome.Detail,
			ExitCode: -1,
		}
	}

	var key string
	if req.Cacheable {
		k, err := cacheKey(outcome.ResolvedPath, req.Parameters)
		if err == nil {
			key = k
			if data, ok := b.cache.Lookup(key); ok {
				var cached Result
				if err := json.Unmarshal(data, &cached); err == nil {
					cached.FromCache = true
					logger.Debug("cache hit", slog.String("key", key))
					return &cached
				}
			}
		}
	}

	argv, redacted, err := codec.Encode(req.Parameters)
	if err != nil {
		return &Result{
			Status:   StatusRejected,
			Reason:   ReasonBadParameter,
			Detail:   err.Error(),
			ExitCode: -1,
		}
	}

	// The timeout budget covers the slot wait plus the subprocess: a
	// request that queued too long is not executed late.
	deadline := time.Now().Add(timeout)
	slot, err := b.pool.Acquire(ctx, timeout)
	if err != nil {
		if errors.Is(err, pool.ErrSaturated) {
			logger.Warn("pool saturated", slog.Duration("waited", timeout))
			return &Result{
				Status:     StatusPoolSaturated,
				Reason:     ReasonPoolSaturated,
				ExitCode:   -1,
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		// Context canceled while queued.
		return &Result{
			Status:     StatusTimedOut,
			Reason:     ReasonCanceled,
			ExitCode:   -1,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	defer b.pool.Release(slot)

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return &Result{
			Status:     StatusPoolSaturated,
			Reason:     ReasonPoolSaturated,
			ExitCode:   -1,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	raw, err := b.runner.Run(ctx, runner.Spec{
		Path:           outcome.ResolvedPath,
		Interpreter:    req.Interpreter,
		Args:           argv,
		Timeout:        remaining,
		Env:            b.cfg.AllowedEnv,
		MaxOutputBytes: b.cfg.MaxOutputBytes,
		CollectStats:   b.cfg.CollectProcessStats,
	})
	if err != nil {
		logger.Error("subprocess could not be started", slog.String("error", err.Error()))
		return &Result{
			Status:     StatusSpawnFailed,
			Reason:     ReasonSpawnFailed,
			Detail:     err.Error(),
			ExitCode:   -1,
			Argv:       redacted,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	result := b.buildResult(raw, format, redacted)

	logger.Info("script executed",
		slog.String("status", string(result.Status)),
		slog.Int("exit_code", result.ExitCode),
		slog.Int("slot", slot.ID()),
		slog.Int64("duration_ms", result.DurationMs),
	)

	// Only successes are cached: a transient failure must never poison
	// subsequent calls.
	if req.Cacheable && key != "" && result.Status == StatusSucceeded {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = time.Duration(b.cfg.DefaultCacheTTLSeconds) * time.Second
		}
		if data, err := json.Marshal(result); err == nil {
			if err := b.cache.Store(key, data, ttl); err != nil {
				logger.Warn("cache store failed", slog.String("error", err.Error()))
			}
		}
	}

	return result
}

// buildResult applies the status precedence to a raw outcome: a kill
// outranks everything and skips decoding, a non-zero exit outranks
// decodable output, and only then is stdout decoded.
func (b *Bridge) buildResult(raw *runner.Outcome, format OutputFormat, redacted []string) *Result {
	result := &Result{
		RawStdout:       raw.Stdout,
		RawStderr:       raw.Stderr,
		StdoutTruncated: raw.StdoutTruncated,
		StderrTruncated: raw.StderrTruncated,
		ExitCode:        raw.ExitCode,
		DurationMs:      raw.Duration.Milliseconds(),
		Argv:            redacted,
		Stats:           raw.Stats,
	}

	switch {
	case raw.TimedOut:
		result.Status = StatusTimedOut
		if raw.Canceled {
			result.Reason = ReasonCanceled
		} else {
			result.Reason = ReasonTimeout
		}
	case raw.ExitCode != 0:
		result.Status = StatusFailed
		result.Reason = ReasonNonZeroExit
	default:
		payload, warnings, err := decode.Decode(raw.Stdout, format, b.cfg.Delimiter())
		if err != nil {
			result.Status = StatusFailed
			result.Reason = ReasonUnparseable
			result.Detail = err.Error()
		} else {
			result.Status = StatusSucceeded
			result.Payload = payload
			result.Warnings = warnings
		}
	}

	return result
}

// ExecuteBatch runs all requests concurrently, each independently
// subject to the pool's capacity, and returns results positionally
// aligned with the input regardless of completion order.
func (b *Bridge) ExecuteBatch(ctx context.Context, reqs []Request) []*Result {
	results := make([]*Result, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			results[i] = b.Execute(ctx, req)
		}(i, req)
	}

	wg.Wait()
	return results
}

// InvalidateCache removes the cached result for a request, if any.
// The same canonicalization as caching applies, so parameter order
// does not matter.
func (b *Bridge) InvalidateCache(req Request) error {
	outcome := b.gate.Validate(req.ScriptPath, req.Parameters)
	if !outcome.OK {
		return errors.New("invalidate: " + outcome.Reason)
	}
	key, err := cacheKey(outcome.ResolvedPath, req.Parameters)
	if err != nil {
		return err
	}
	return b.cache.Invalidate(key)
}

// PoolStats returns current pool occupancy for health reporting.
func (b *Bridge) PoolStats() pool.Stats {
	return b.pool.Stats()
}

// Close stops the cache sweep and releases cache resources. In-flight
// executions are unaffected; callers should drain them first.
func (b *Bridge) Close() error {
	return b.cache.Close()
}
