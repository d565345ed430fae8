package workflow

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/wheelctl/internal/fetch"
	"github.com/danmuck/wheelctl/internal/install"
	"github.com/danmuck/wheelctl/internal/manifest"
	"github.com/danmuck/wheelctl/internal/script"
)

var ErrInvalidConfig = errors.New("workflow: invalid config")

// ScriptConfig controls the generated offline install script.
type ScriptConfig struct {
	// Path disables script generation when empty.
	Path   string
	Format script.Format
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	Textfile string
}

// Config is the resolved workflow configuration.
type Config struct {
	Namespace   string
	ArtifactDir string
	Python      string
	Teardown    bool
	Confirm     bool
	Manifests   []manifest.Source
	Fetch       fetch.Options
	Install     install.Options
	Script      ScriptConfig
	Metrics     MetricsConfig
}

// DefaultConfig is the fixed behavior used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Namespace:   ".venv_offline",
		ArtifactDir: "wheels_offline",
		Python:      "python3",
		Teardown:    false,
		Confirm:     true,
		Manifests: []manifest.Source{
			{Name: "primary", Location: filepath.Join("requirements", "primary.txt")},
			{Name: "secondary", Location: filepath.Join("requirements", "secondary.txt")},
		},
		Fetch:   fetch.DefaultOptions(),
		Install: install.Options{Offline: true},
		Script: ScriptConfig{
			Path:   "installation-instructions.sh",
			Format: script.FormatShell,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ArtifactDir) == "" {
		return fmt.Errorf("%w: artifact_dir is required", ErrInvalidConfig)
	}
	if filepath.Clean(c.Namespace) == filepath.Clean(c.ArtifactDir) {
		return fmt.Errorf("%w: namespace and artifact_dir must differ", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Python) == "" {
		return fmt.Errorf("%w: python is required", ErrInvalidConfig)
	}
	if len(c.Manifests) == 0 {
		return fmt.Errorf("%w: at least one manifest is required", ErrInvalidConfig)
	}
	for i, src := range c.Manifests {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("%w: manifests[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	if _, err := fetch.ParseMode(string(c.Fetch.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Fetch.Mode == fetch.ModeStrategies {
		m := c.Fetch.Matrix
		if len(m.Platforms) == 0 || len(m.PythonVersions) == 0 || len(m.Implementations) == 0 {
			return fmt.Errorf("%w: strategies mode needs platforms, python_versions and implementations", ErrInvalidConfig)
		}
	}
	if c.Script.Path != "" {
		if _, err := script.ParseFormat(string(c.Script.Format)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
