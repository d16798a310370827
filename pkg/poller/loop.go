// Package poller drives the scrape cycle: make sure a logged-in dashboard
// session exists, read the meter values, publish them, and wait for the
// next tick.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/usms-bridge/usms-scraper/pkg/config"
	"github.com/usms-bridge/usms-scraper/pkg/dashboard"
)

// ErrPanic wraps a panic recovered at the cycle boundary.
var ErrPanic = errors.New("cycle panicked")

// Publisher receives each cycle's reading. It reports its own failures.
type Publisher interface {
	Publish(ctx context.Context, reading dashboard.Reading)
}

// Loop runs scrape cycles on a fixed interval.
type Loop struct {
	sessions  *dashboard.SessionManager
	extractor *dashboard.Extractor
	publisher Publisher
	interval  time.Duration
	logger    zerolog.Logger
	sleep     dashboard.SleepFunc

	cycle int
}

// New creates a poll loop.
func New(sessions *dashboard.SessionManager, extractor *dashboard.Extractor, publisher Publisher, cfg config.Config, logger zerolog.Logger) *Loop {
	return &Loop{
		sessions:  sessions,
		extractor: extractor,
		publisher: publisher,
		interval:  cfg.Poll.Interval,
		logger:    logger,
		sleep:     dashboard.SleepContext,
	}
}

// SetSleep replaces the function used for the inter-cycle wait.
func (l *Loop) SetSleep(sleep dashboard.SleepFunc) {
	l.sleep = sleep
}

// Cycles returns how many cycles have started.
func (l *Loop) Cycles() int {
	return l.cycle
}

// RunOnce runs a single cycle. A lost session is replaced and the cycle
// retried once before giving up. Errors and panics end the cycle and are
// returned after being logged; they never escape as panics.
func (l *Loop) RunOnce(ctx context.Context) (reading dashboard.Reading, err error) {
	l.cycle++
	logger := l.logger.With().Int("cycle", l.cycle).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			reading = dashboard.Reading{}
			logger.Error().Err(err).Str("stack", string(debug.Stack())).Msg("scrape cycle failed")
		}
	}()

	reading, err = l.collect(ctx)
	if errors.Is(err, dashboard.ErrSessionInvalid) {
		logger.Warn().Err(err).Msg("browser session lost, recreating")
		l.sessions.Invalidate(err)
		reading, err = l.collect(ctx)
	}

	if err != nil {
		if errors.Is(err, dashboard.ErrSessionInvalid) {
			l.sessions.Invalidate(err)
		}
		if ctx.Err() != nil {
			logger.Info().Err(err).Msg("scrape cycle interrupted")
			return dashboard.Reading{}, err
		}
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scrape cycle failed")
		return dashboard.Reading{}, err
	}

	l.publisher.Publish(ctx, reading)

	summary := logger.Info()
	if missing := reading.Missing(); len(missing) > 0 {
		summary = logger.Warn().Strs("missing", missing)
	}
	summary.
		Str(dashboard.NameRemainingUnit, reading.RemainingUnit.String()).
		Str(dashboard.NameRemainingBalance, reading.RemainingBalance.String()).
		Str(dashboard.NameMeterLastPolled, reading.MeterLastPolled.String()).
		Time(dashboard.NameLastRun, reading.CapturedAt).
		Dur("elapsed", time.Since(start)).
		Msg(Summary(reading))

	return reading, nil
}

func (l *Loop) collect(ctx context.Context) (dashboard.Reading, error) {
	page, err := l.sessions.Ensure(ctx)
	if err != nil {
		return dashboard.Reading{}, err
	}
	return l.extractor.Extract(ctx, page)
}

// Run repeats RunOnce, sleeping the configured interval after every cycle
// whatever its outcome. It returns nil once ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("polling started")

	for {
		// Errors are logged by RunOnce; the next tick retries
		_, _ = l.RunOnce(ctx)

		if ctx.Err() != nil {
			break
		}

		l.logger.Debug().Time("next_run", time.Now().Add(l.interval)).Msg("waiting for next cycle")
		if err := l.sleep(ctx, l.interval); err != nil {
			break
		}
	}

	l.logger.Info().Int("cycles", l.cycle).Msg("polling stopped")
	return nil
}

// Summary renders a reading for humans.
func Summary(r dashboard.Reading) string {
	return fmt.Sprintf("remaining unit %s, balance %s, meter last polled %s (captured %s)",
		r.RemainingUnit, r.RemainingBalance, r.MeterLastPolled,
		r.CapturedAt.Format("2006-01-02 15:04:05 MST"))
}
