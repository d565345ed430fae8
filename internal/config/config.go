package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wheelctl/internal/fetch"
	"github.com/danmuck/wheelctl/internal/manifest"
	"github.com/danmuck/wheelctl/internal/script"
	"github.com/danmuck/wheelctl/internal/workflow"
	pelletier "github.com/pelletier/go-toml/v2"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "wheelctl.toml"

type fileManifest struct {
	Name   string `toml:"name"`
	Source string `toml:"source"`
}

type fileFetch struct {
	Mode            string              `toml:"mode"`
	DownloadAll     bool                `toml:"download_all"`
	FlattenFirst    bool                `toml:"flatten_first"`
	Platforms       []string            `toml:"platforms"`
	PythonVersions  []string            `toml:"python_versions"`
	Implementations []string            `toml:"implementations"`
	OnlyBinary      bool                `toml:"only_binary"`
	Companions      map[string][]string `toml:"companions"`
}

type fileInstall struct {
	Offline bool `toml:"offline"`
}

type fileScript struct {
	Path   string `toml:"path"`
	Format string `toml:"format"`
}

type fileMetrics struct {
	Textfile string `toml:"textfile"`
}

type fileConfig struct {
	Namespace   string         `toml:"namespace"`
	ArtifactDir string         `toml:"artifact_dir"`
	Python      string         `toml:"python"`
	Teardown    bool           `toml:"teardown"`
	Confirm     bool           `toml:"confirm"`
	Manifests   []fileManifest `toml:"manifests"`
	Fetch       fileFetch      `toml:"fetch"`
	Install     fileInstall    `toml:"install"`
	Script      fileScript     `toml:"script"`
	Metrics     fileMetrics    `toml:"metrics"`
}

// Load decodes path and overlays every defined key onto workflow.DefaultConfig.
func Load(path string) (workflow.Config, error) {
	cfg := workflow.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return workflow.Config{}, fmt.Errorf("load wheelctl config: %w", err)
	}

	if meta.IsDefined("namespace") {
		cfg.Namespace = strings.TrimSpace(raw.Namespace)
	}
	if meta.IsDefined("artifact_dir") {
		cfg.ArtifactDir = strings.TrimSpace(raw.ArtifactDir)
	}
	if meta.IsDefined("python") {
		cfg.Python = strings.TrimSpace(raw.Python)
	}
	if meta.IsDefined("teardown") {
		cfg.Teardown = raw.Teardown
	}
	if meta.IsDefined("confirm") {
		cfg.Confirm = raw.Confirm
	}
	if meta.IsDefined("manifests") {
		cfg.Manifests = normalizeManifests(raw.Manifests)
	}

	if meta.IsDefined("fetch", "mode") {
		mode, err := fetch.ParseMode(raw.Fetch.Mode)
		if err != nil {
			return workflow.Config{}, fmt.Errorf("parse fetch.mode: %w", err)
		}
		cfg.Fetch.Mode = mode
	}
	if meta.IsDefined("fetch", "download_all") {
		cfg.Fetch.DownloadAll = raw.Fetch.DownloadAll
	}
	if meta.IsDefined("fetch", "flatten_first") {
		cfg.Fetch.FlattenFirst = raw.Fetch.FlattenFirst
	}
	if meta.IsDefined("fetch", "platforms") {
		cfg.Fetch.Matrix.Platforms = normalizeList(raw.Fetch.Platforms)
	}
	if meta.IsDefined("fetch", "python_versions") {
		cfg.Fetch.Matrix.PythonVersions = normalizeList(raw.Fetch.PythonVersions)
	}
	if meta.IsDefined("fetch", "implementations") {
		cfg.Fetch.Matrix.Implementations = normalizeList(raw.Fetch.Implementations)
	}
	if meta.IsDefined("fetch", "only_binary") {
		cfg.Fetch.Matrix.OnlyBinary = raw.Fetch.OnlyBinary
	}
	if meta.IsDefined("fetch", "companions") {
		cfg.Fetch.Companions = normalizeCompanions(raw.Fetch.Companions)
	}

	if meta.IsDefined("install", "offline") {
		cfg.Install.Offline = raw.Install.Offline
	}

	if meta.IsDefined("script", "path") {
		cfg.Script.Path = strings.TrimSpace(raw.Script.Path)
	}
	if meta.IsDefined("script", "format") {
		format, err := script.ParseFormat(raw.Script.Format)
		if err != nil {
			return workflow.Config{}, fmt.Errorf("parse script.format: %w", err)
		}
		cfg.Script.Format = format
	}

	if meta.IsDefined("metrics", "textfile") {
		cfg.Metrics.Textfile = strings.TrimSpace(raw.Metrics.Textfile)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when path is the
// implicit default and does not exist.
func LoadOrDefault(path string, explicit bool) (workflow.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return workflow.DefaultConfig(), nil
		}
	}
	return Load(path)
}

// Validate runs semantic checks on a resolved config.
func Validate(cfg workflow.Config) error {
	return cfg.Validate()
}

// ValidateFile decodes path strictly, rejecting unknown keys, then loads and
// validates it.
func ValidateFile(path string) (workflow.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return workflow.Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	defer f.Close()

	var raw fileConfig
	dec := pelletier.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		var strict *pelletier.StrictMissingError
		if errors.As(err, &strict) {
			return workflow.Config{}, fmt.Errorf("%w: unknown keys in %s:\n%s", workflow.ErrInvalidConfig, path, strict.String())
		}
		return workflow.Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg, err := Load(path)
	if err != nil {
		return workflow.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return workflow.Config{}, err
	}
	return cfg, nil
}

func normalizeManifests(in []fileManifest) []manifest.Source {
	out := make([]manifest.Source, 0, len(in))
	for i, m := range in {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = fmt.Sprintf("manifest-%d", i+1)
		}
		out = append(out, manifest.Source{Name: name, Location: strings.TrimSpace(m.Source)})
	}
	return out
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func normalizeCompanions(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for name, extra := range in {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		out[key] = normalizeList(extra)
	}
	return out
}
