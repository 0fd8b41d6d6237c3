package ratelimit

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricewatch/backend/internal/domain"
)

// minWindowSamples is how many outcomes the window must hold before the
// circuit breaker is evaluated. Prevents a couple of early failures from
// tripping slow mode at the start of a run.
const minWindowSamples = 10

// Config holds pacing configuration
type Config struct {
	MinGapSeconds      float64
	SlowModeMultiplier float64
	CircuitThreshold   float64
	WindowSize         int
	JitterMin          time.Duration
	JitterMax          time.Duration
	EnableDebugLogging bool
}

// DefaultConfig mirrors the pacing values tuned against live storefronts
var DefaultConfig = Config{
	MinGapSeconds:      7.5,
	SlowModeMultiplier: 2.0,
	CircuitThreshold:   0.30,
	WindowSize:         20,
	JitterMin:          700 * time.Millisecond,
	JitterMax:          1500 * time.Millisecond,
}

// Pacer is the process-wide gate every outbound fetch passes through.
// A token-bucket limiter (burst 1) enforces the minimum gap between
// requests; a bounded window of recent outcomes drives a reactive
// NORMAL/SLOW state machine that doubles the gap while the failure
// fraction exceeds the circuit threshold. The breaker is re-evaluated on
// every Record, not on a timer.
type Pacer struct {
	cfg     Config
	limiter *rate.Limiter

	mutex         sync.Mutex
	window        []bool // ring buffer of outcomes, true = success
	head          int
	count         int
	failures      int
	slowMode      bool
	lastRequestAt time.Time

	// Injection points for deterministic tests
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewPacer creates a pacer in NORMAL mode with a full first token, so the
// first Acquire of a run never waits.
func NewPacer(cfg Config) *Pacer {
	if cfg.MinGapSeconds <= 0 {
		cfg.MinGapSeconds = DefaultConfig.MinGapSeconds
	}
	if cfg.SlowModeMultiplier <= 1 {
		cfg.SlowModeMultiplier = DefaultConfig.SlowModeMultiplier
	}
	if cfg.CircuitThreshold <= 0 {
		cfg.CircuitThreshold = DefaultConfig.CircuitThreshold
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig.WindowSize
	}
	if cfg.JitterMax <= cfg.JitterMin {
		cfg.JitterMin = DefaultConfig.JitterMin
		cfg.JitterMax = DefaultConfig.JitterMax
	}

	p := &Pacer{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(1.0/cfg.MinGapSeconds), 1),
		window:  make([]bool, cfg.WindowSize),
		now:     time.Now,
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	p.jitter = func() time.Duration {
		span := cfg.JitterMax - cfg.JitterMin
		return cfg.JitterMin + time.Duration(rand.Int63n(int64(span)))
	}
	return p
}

// Acquire blocks until the caller may perform an outbound request. The gap
// is measured from the previous request's stamp, taken after that request's
// jitter pause, so two consecutive acquisitions can never land closer than
// the effective gap no matter how the jitter draws fall. The limiter spaces
// concurrent callers on top of that. Cancelling the context aborts the wait
// and leaves the pacer's window untouched.
func (p *Pacer) Acquire(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}

	p.mutex.Lock()
	last := p.lastRequestAt
	gap := p.gapLocked()
	p.mutex.Unlock()

	if !last.IsZero() {
		if remaining := gap - p.now().Sub(last); remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return fmt.Errorf("pacer gap: %w", err)
			}
		}
	}
	if err := p.sleep(ctx, p.jitter()); err != nil {
		return fmt.Errorf("pacer jitter: %w", err)
	}

	p.mutex.Lock()
	p.lastRequestAt = p.now()
	p.mutex.Unlock()
	return nil
}

// gapLocked is the effective minimum gap under the current breaker state.
// Caller holds the mutex.
func (p *Pacer) gapLocked() time.Duration {
	gap := p.cfg.MinGapSeconds
	if p.slowMode {
		gap *= p.cfg.SlowModeMultiplier
	}
	return time.Duration(gap * float64(time.Second))
}

// Record appends one fetch outcome to the window, evicting the oldest past
// capacity, and re-evaluates the slow-mode breaker. Sustained failures
// above the threshold double the effective gap; recovery is automatic once
// the failure fraction drops back.
func (p *Pacer) Record(success bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.count == len(p.window) {
		// Evict oldest
		if !p.window[p.head] {
			p.failures--
		}
	} else {
		p.count++
	}
	p.window[p.head] = success
	if !success {
		p.failures++
	}
	p.head = (p.head + 1) % len(p.window)

	if p.count < minWindowSamples {
		return
	}

	slow := p.failRateLocked() > p.cfg.CircuitThreshold
	if slow == p.slowMode {
		return
	}
	p.slowMode = slow

	gap := p.cfg.MinGapSeconds
	if slow {
		gap *= p.cfg.SlowModeMultiplier
	}
	p.limiter.SetLimit(rate.Limit(1.0 / gap))

	if p.cfg.EnableDebugLogging {
		log.Printf("[PACER] slow mode %v (fail rate %.0f%%, gap %.1fs)",
			slow, p.failRateLocked()*100, gap)
	}
}

// Stats returns a read-only snapshot. The failure rate covers only the
// outcomes currently held, so a short window early in a run is expected.
func (p *Pacer) Stats() domain.PacerStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	gap := p.cfg.MinGapSeconds
	if p.slowMode {
		gap *= p.cfg.SlowModeMultiplier
	}
	return domain.PacerStats{
		MinGapSeconds:  gap,
		SlowMode:       p.slowMode,
		RecentFailRate: p.failRateLocked(),
		WindowSize:     p.count,
	}
}

func (p *Pacer) failRateLocked() float64 {
	if p.count == 0 {
		return 0
	}
	return float64(p.failures) / float64(p.count)
}
