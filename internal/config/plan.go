package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ComponentDescriptor describes how to launch one child process.
// Command and Args may carry the placeholders {session_dir},
// {power_config}, {scope_config} and {capture_device}, substituted when the
// plan is built for a session.
type ComponentDescriptor struct {
	Name         string
	Command      string
	Args         []string
	StartupDelay time.Duration // wait after this launch before the next
	Required     bool          // launch failure aborts the whole session
}

// UsesCaptureDevice reports whether any argument references the
// {capture_device} placeholder. Components that do are dropped when the
// operator disables thermal capture.
func (d ComponentDescriptor) UsesCaptureDevice() bool {
	for _, arg := range d.Args {
		if strings.Contains(arg, placeholderCaptureDevice) {
			return true
		}
	}
	return strings.Contains(d.Command, placeholderCaptureDevice)
}

// CollectRule maps one well-known source location to an artifact category.
// When GroupDirs is set, the patterns match sub-directory names and every
// file inside a matching sub-directory is collected.
type CollectRule struct {
	Category  string
	SourceDir string
	Patterns  []string
	GroupDirs bool
}

// Plan is the ordered component launch table for a session plus the artifact
// organizer's collection rules.
type Plan struct {
	Components []ComponentDescriptor
	Collect    []CollectRule
}

const (
	placeholderSessionDir    = "{session_dir}"
	placeholderPowerConfig   = "{power_config}"
	placeholderScopeConfig   = "{scope_config}"
	placeholderCaptureDevice = "{capture_device}"
)

// DefaultPlan returns the built-in three-instrument plan: thermal camera
// recorder first (it must claim its USB devices before the instruments
// initialize), then the power-supply monitor, then the oscilloscope capture.
func DefaultPlan() Plan {
	return Plan{
		Components: []ComponentDescriptor{
			{
				Name:         "Thermal Camera",
				Command:      "python3",
				Args:         []string{"scripts/dual_recorder_resilient.py", placeholderSessionDir, placeholderCaptureDevice},
				StartupDelay: 10 * time.Second,
				Required:     false,
			},
			{
				Name:         "Power Supply",
				Command:      "python3",
				Args:         []string{"scripts/power_supply_live_monitor.py", placeholderPowerConfig},
				StartupDelay: 5 * time.Second,
				Required:     true,
			},
			{
				Name:         "Oscilloscope",
				Command:      "python3",
				Args:         []string{"scripts/live_16ch_multiscope_enhanced.py", placeholderScopeConfig},
				StartupDelay: 0,
				Required:     true,
			},
		},
		Collect: []CollectRule{
			{
				Category:  "oscilloscope_data",
				SourceDir: "data",
				Patterns:  []string{"multiscope_*.csv", "performance_*.txt"},
			},
			{
				Category:  "oscilloscope_plots",
				SourceDir: "plots",
				Patterns:  []string{"multiscope_*.png"},
			},
			{
				Category:  "webcam_videos",
				SourceDir: "recordings",
				Patterns:  []string{"recording_*"},
				GroupDirs: true,
			},
			{
				Category:  "test_metadata",
				SourceDir: ".",
				Patterns:  []string{"test_config_*.json", "session_notes_*.txt"},
			},
		},
	}
}

// planFile is the TOML wire form of a Plan. Startup delays are plain seconds
// so plan files stay readable by operators.
type planFile struct {
	Component []planComponent `toml:"component"`
	Collect   []planRule      `toml:"collect"`
}

type planComponent struct {
	Name         string   `toml:"name"`
	Command      string   `toml:"command"`
	Args         []string `toml:"args"`
	DelaySeconds float64  `toml:"startup_delay_seconds"`
	Required     *bool    `toml:"required"` // omitted = required
}

type planRule struct {
	Category  string   `toml:"category"`
	SourceDir string   `toml:"source_dir"`
	Patterns  []string `toml:"patterns"`
	GroupDirs bool     `toml:"group_dirs"`
}

// LoadPlan reads a launch plan from a TOML file. A plan that declares no
// collect rules inherits the built-in ones.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read launch plan: %w", err)
	}

	var pf planFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return Plan{}, fmt.Errorf("parse launch plan %s: %w", path, err)
	}

	if len(pf.Component) == 0 {
		return Plan{}, fmt.Errorf("launch plan %s declares no components", path)
	}

	plan := Plan{}
	seen := make(map[string]bool)
	for i, pc := range pf.Component {
		if pc.Name == "" {
			return Plan{}, fmt.Errorf("launch plan %s: component %d has no name", path, i+1)
		}
		if pc.Command == "" {
			return Plan{}, fmt.Errorf("launch plan %s: component %q has no command", path, pc.Name)
		}
		if seen[pc.Name] {
			return Plan{}, fmt.Errorf("launch plan %s: duplicate component name %q", path, pc.Name)
		}
		seen[pc.Name] = true
		if pc.DelaySeconds < 0 {
			return Plan{}, fmt.Errorf("launch plan %s: component %q has negative startup delay", path, pc.Name)
		}

		required := true
		if pc.Required != nil {
			required = *pc.Required
		}

		plan.Components = append(plan.Components, ComponentDescriptor{
			Name:         pc.Name,
			Command:      pc.Command,
			Args:         pc.Args,
			StartupDelay: time.Duration(pc.DelaySeconds * float64(time.Second)),
			Required:     required,
		})
	}

	for i, pr := range pf.Collect {
		if pr.Category == "" {
			return Plan{}, fmt.Errorf("launch plan %s: collect rule %d has no category", path, i+1)
		}
		if pr.SourceDir == "" {
			return Plan{}, fmt.Errorf("launch plan %s: collect rule %q has no source_dir", path, pr.Category)
		}
		if len(pr.Patterns) == 0 {
			return Plan{}, fmt.Errorf("launch plan %s: collect rule %q has no patterns", path, pr.Category)
		}
		plan.Collect = append(plan.Collect, CollectRule{
			Category:  pr.Category,
			SourceDir: pr.SourceDir,
			Patterns:  pr.Patterns,
			GroupDirs: pr.GroupDirs,
		})
	}
	if len(plan.Collect) == 0 {
		plan.Collect = DefaultPlan().Collect
	}

	return plan, nil
}

// LoadPlanOrDefault returns the plan at path, or the built-in plan when path
// is empty.
func LoadPlanOrDefault(path string) (Plan, error) {
	if path == "" {
		return DefaultPlan(), nil
	}
	return LoadPlan(path)
}

// BuildComponents resolves the plan's component table for one session:
// placeholders are substituted and, when thermal capture is disabled, every
// component consuming the capture device is dropped.
func (p Plan) BuildComponents(in *ResolvedInputs, sessionDir string) []ComponentDescriptor {
	repl := strings.NewReplacer(
		placeholderSessionDir, sessionDir,
		placeholderPowerConfig, in.PowerConfig,
		placeholderScopeConfig, in.ScopeConfig,
		placeholderCaptureDevice, in.CaptureDevice,
	)

	out := make([]ComponentDescriptor, 0, len(p.Components))
	for _, d := range p.Components {
		if !in.ThermalEnabled && d.UsesCaptureDevice() {
			continue
		}
		resolved := d
		resolved.Command = repl.Replace(d.Command)
		resolved.Args = make([]string, len(d.Args))
		for i, arg := range d.Args {
			resolved.Args[i] = repl.Replace(arg)
		}
		out = append(out, resolved)
	}
	return out
}
