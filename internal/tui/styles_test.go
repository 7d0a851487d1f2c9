package tui

import (
	"strings"
	"testing"
)

// =============================================================================
// Tests: Phase Indicator
// =============================================================================

func TestGetPhaseLabel(t *testing.T) {
	tests := []struct {
		phase      string
		wantSubstr string
	}{
		{"armed", "Armed"},
		{"stopping", "Stopping"},
		{"done", "Done"},
		{"unknown_phase", "unknown_phase"},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			got := GetPhaseLabel(tt.phase)
			if !strings.Contains(got, tt.wantSubstr) {
				t.Errorf("GetPhaseLabel(%q) = %q, want substring %q", tt.phase, got, tt.wantSubstr)
			}
		})
	}
}

// =============================================================================
// Tests: Component State Indicator
// =============================================================================

func TestGetStateStyle(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"running", "good"},
		{"pending", "info"},
		{"starting", "info"},
		{"exited_ok", "muted"},
		{"terminated", "warn"},
		{"exited_error", "bad"},
		{"killed", "bad"},
		{"launch_failed", "bad"},
		{"something_else", "neutral"},
	}

	// Compare against the style variables rather than rendered output,
	// since rendering collapses to plain text without a TTY.
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := GetStateStyle(tt.state)

			want := valueStyle
			switch tt.want {
			case "good":
				want = valueGoodStyle
			case "info":
				want = statusInfo
			case "muted":
				want = mutedStyle
			case "warn":
				want = valueWarnStyle
			case "bad":
				want = valueBadStyle
			}

			if got.GetForeground() != want.GetForeground() {
				t.Errorf("GetStateStyle(%q) foreground = %v, want %v",
					tt.state, got.GetForeground(), want.GetForeground())
			}
		})
	}
}

func TestGetStateLabel(t *testing.T) {
	got := GetStateLabel("running")
	if !strings.Contains(got, "running") {
		t.Errorf("GetStateLabel(running) = %q, want substring running", got)
	}
}

// =============================================================================
// Tests: Render Helpers
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	result := RenderKeyValue("Label", "Value")
	if !strings.Contains(result, "Label") {
		t.Error("RenderKeyValue missing label")
	}
	if !strings.Contains(result, "Value") {
		t.Error("RenderKeyValue missing value")
	}
}

func TestRenderKeyValueWide(t *testing.T) {
	result := RenderKeyValueWide("Wide Label", "Value")
	if !strings.Contains(result, "Wide Label") {
		t.Error("RenderKeyValueWide missing label")
	}
	if !strings.Contains(result, "Value") {
		t.Error("RenderKeyValueWide missing value")
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
	}{
		{"empty", 0.0, 20},
		{"half", 0.5, 20},
		{"full", 1.0, 20},
		{"over", 1.5, 20},
		{"negative", -0.5, 20},
		{"tiny width", 0.5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(result, "%") {
				t.Error("progress bar missing percent")
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		char  rune
		count int
		want  string
	}{
		{'x', 3, "xxx"},
		{'x', 0, ""},
		{'x', -1, ""},
		{'█', 2, "██"},
	}

	for _, tt := range tests {
		if got := repeatChar(tt.char, tt.count); got != tt.want {
			t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.char, tt.count, got, tt.want)
		}
	}
}
