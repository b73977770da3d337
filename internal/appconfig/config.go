// Package appconfig loads and validates the application configuration.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Build         BuildConfig   `mapstructure:"build" yaml:"build"`
	Console       ConsoleConfig `mapstructure:"console" yaml:"console"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig selects and addresses the container engine backend.
type EngineConfig struct {
	Backend    string           `mapstructure:"backend" yaml:"backend"`
	Address    string           `mapstructure:"address" yaml:"address"`
	Containerd ContainerdConfig `mapstructure:"containerd" yaml:"containerd"`
}

// ContainerdConfig configures the containerd endpoint.
type ContainerdConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// BuildConfig configures the BuildKit endpoint.
type BuildConfig struct {
	Address              string `mapstructure:"address" yaml:"address"`
	DefaultContainerfile string `mapstructure:"default_containerfile" yaml:"default_containerfile"`
}

// ConsoleConfig tunes the console output pipeline.
type ConsoleConfig struct {
	MaxLines          int  `mapstructure:"max_lines" yaml:"max_lines"`
	MaxQueueSize      int  `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	MaxLinesPerTick   int  `mapstructure:"max_lines_per_tick" yaml:"max_lines_per_tick"`
	FlushIntervalMS   int  `mapstructure:"flush_interval_ms" yaml:"flush_interval_ms"`
	StopGraceMS       int  `mapstructure:"stop_grace_ms" yaml:"stop_grace_ms"`
	InterruptCommands bool `mapstructure:"interrupt_commands" yaml:"interrupt_commands"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".buildbox", "config.yaml"), nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	uid := os.Getuid()
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run", "user", fmt.Sprintf("%d", uid))
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Engine: EngineConfig{
			Backend: "docker",
			Address: "unix:///var/run/docker.sock",
			Containerd: ContainerdConfig{
				Address:   fmt.Sprintf("unix://%s", filepath.Join(runtimeDir, "containerd", "containerd.sock")),
				Namespace: "default",
			},
		},
		Build: BuildConfig{
			Address:              "",
			DefaultContainerfile: "Dockerfile",
		},
		Console: ConsoleConfig{
			MaxLines:          schema.DefaultMaxLines,
			MaxQueueSize:      schema.DefaultMaxQueueSize,
			MaxLinesPerTick:   schema.DefaultMaxLinesPerTick,
			FlushIntervalMS:   int(schema.DefaultFlushInterval.Milliseconds()),
			StopGraceMS:       int(schema.DefaultStopGrace.Milliseconds()),
			InterruptCommands: false,
		},
	}
}
