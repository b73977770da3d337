package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults; a present file must
// carry a supported config_version.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("engine.backend", cfg.Engine.Backend)
	v.SetDefault("engine.address", cfg.Engine.Address)
	v.SetDefault("engine.containerd.address", cfg.Engine.Containerd.Address)
	v.SetDefault("engine.containerd.namespace", cfg.Engine.Containerd.Namespace)
	v.SetDefault("build.address", cfg.Build.Address)
	v.SetDefault("build.default_containerfile", cfg.Build.DefaultContainerfile)
	v.SetDefault("console.max_lines", cfg.Console.MaxLines)
	v.SetDefault("console.max_queue_size", cfg.Console.MaxQueueSize)
	v.SetDefault("console.max_lines_per_tick", cfg.Console.MaxLinesPerTick)
	v.SetDefault("console.flush_interval_ms", cfg.Console.FlushIntervalMS)
	v.SetDefault("console.stop_grace_ms", cfg.Console.StopGraceMS)
	v.SetDefault("console.interrupt_commands", cfg.Console.InterruptCommands)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		switch v.GetString("engine.backend") {
		case "docker", "containerd":
		default:
			return Config{}, fmt.Errorf("unsupported engine.backend %q", v.GetString("engine.backend"))
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	return cfg, nil
}

// ConsoleSettings converts the file representation into the runtime config.
func (c Config) ConsoleSettings() schema.ConsoleConfig {
	return schema.NormalizeConsoleConfig(schema.ConsoleConfig{
		MaxLines:          c.Console.MaxLines,
		MaxQueueSize:      c.Console.MaxQueueSize,
		MaxLinesPerTick:   c.Console.MaxLinesPerTick,
		FlushInterval:     time.Duration(c.Console.FlushIntervalMS) * time.Millisecond,
		StopGrace:         time.Duration(c.Console.StopGraceMS) * time.Millisecond,
		InterruptCommands: c.Console.InterruptCommands,
	})
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Engine.Address = expandEnv(cfg.Engine.Address)
	cfg.Engine.Containerd.Address = expandEnv(cfg.Engine.Containerd.Address)
	cfg.Build.Address = expandEnv(cfg.Build.Address)
	cfg.Build.DefaultContainerfile = expandEnv(cfg.Build.DefaultContainerfile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
