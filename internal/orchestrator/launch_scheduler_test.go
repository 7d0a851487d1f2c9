package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
)

func TestLaunchScheduler_ZeroDelay(t *testing.T) {
	s := NewLaunchScheduler(false, newTestLogger())

	start := time.Now()
	if err := s.Wait(context.Background(), "Oscilloscope", 0); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait(0) took %v, want immediate return", elapsed)
	}
}

func TestLaunchScheduler_NegativeDelay(t *testing.T) {
	s := NewLaunchScheduler(false, newTestLogger())

	if err := s.Wait(context.Background(), "Oscilloscope", -time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestLaunchScheduler_SkipDelays(t *testing.T) {
	s := NewLaunchScheduler(true, newTestLogger())

	if !s.SkipDelays() {
		t.Error("SkipDelays() = false, want true")
	}

	start := time.Now()
	if err := s.Wait(context.Background(), "Thermal Camera", 10*time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() with skipDelays took %v, want immediate return", elapsed)
	}
}

func TestLaunchScheduler_WaitsOutDelay(t *testing.T) {
	s := NewLaunchScheduler(false, newTestLogger())

	const delay = 150 * time.Millisecond
	start := time.Now()
	if err := s.Wait(context.Background(), "Power Supply", delay); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("Wait() returned after %v, want at least %v", elapsed, delay)
	}
}

func TestLaunchScheduler_CancelMidWait(t *testing.T) {
	s := NewLaunchScheduler(false, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.Wait(ctx, "Thermal Camera", 30*time.Second)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Wait() took %v to notice the cancel, want prompt return", elapsed)
	}
}

func TestLaunchScheduler_EstimatedLaunchDuration(t *testing.T) {
	three := []config.ComponentDescriptor{
		{Name: "Thermal Camera", StartupDelay: 10 * time.Second},
		{Name: "Power Supply", StartupDelay: 5 * time.Second},
		{Name: "Oscilloscope", StartupDelay: 0},
	}

	tests := []struct {
		name       string
		skipDelays bool
		components []config.ComponentDescriptor
		want       time.Duration
	}{
		{
			name:       "default plan shape",
			components: three,
			want:       15 * time.Second,
		},
		{
			name: "last delay excluded",
			components: []config.ComponentDescriptor{
				{Name: "A", StartupDelay: time.Second},
				{Name: "B", StartupDelay: time.Minute},
			},
			want: time.Second,
		},
		{
			name:       "single component",
			components: []config.ComponentDescriptor{{Name: "A", StartupDelay: time.Minute}},
			want:       0,
		},
		{
			name:       "empty plan",
			components: nil,
			want:       0,
		},
		{
			name:       "skip delays",
			skipDelays: true,
			components: three,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLaunchScheduler(tt.skipDelays, newTestLogger())
			if got := s.EstimatedLaunchDuration(tt.components); got != tt.want {
				t.Errorf("EstimatedLaunchDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
