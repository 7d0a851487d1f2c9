// Package orchestrator provides the core session logic for go-instrument-rig.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

// LaunchScheduler waits out the settle delay between component launches.
// Instruments need time to claim their devices before the next one starts
// (the thermal recorder takes several seconds to open its cameras), so the
// delay belongs to the component that was just launched, not the next one.
type LaunchScheduler struct {
	skipDelays bool
	logger     *slog.Logger
}

// NewLaunchScheduler creates a scheduler. With skipDelays set, every wait
// returns immediately (operator override for dry runs).
func NewLaunchScheduler(skipDelays bool, logger *slog.Logger) *LaunchScheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &LaunchScheduler{
		skipDelays: skipDelays,
		logger:     logger,
	}
}

// Wait blocks for the component's startup delay, logging a countdown once
// per second so the operator can see the bringup is alive. Returns the
// context error if the session is cancelled mid-wait.
func (s *LaunchScheduler) Wait(ctx context.Context, component string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	if s.skipDelays {
		s.logger.Info("startup_delay_skipped",
			"component", component,
			"delay", delay.String(),
		)
		return nil
	}

	s.logger.Info("startup_delay",
		"component", component,
		"delay", delay.String(),
	)

	deadline := time.Now().Add(delay)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}

		step := time.Second
		if remaining < step {
			step = remaining
		} else {
			s.logger.Info("startup_delay_countdown",
				"component", component,
				"remaining", remaining.Round(time.Second).String(),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
}

// SkipDelays reports whether delays are being skipped.
func (s *LaunchScheduler) SkipDelays() bool {
	return s.skipDelays
}

// EstimatedLaunchDuration returns the summed startup delays for a launch
// plan. The last component's delay is excluded because nothing launches
// after it.
func (s *LaunchScheduler) EstimatedLaunchDuration(components []config.ComponentDescriptor) time.Duration {
	if s.skipDelays || len(components) == 0 {
		return 0
	}

	var total time.Duration
	for _, desc := range components[:len(components)-1] {
		total += desc.StartupDelay
	}
	return total
}
