package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/wheelctl/internal/artifacts"
	"github.com/danmuck/wheelctl/internal/manifest"
	"github.com/danmuck/wheelctl/internal/pip"
	"github.com/rs/zerolog/log"
)

var ErrUnknownMode = errors.New("fetch: unknown mode")

type Mode string

const (
	ModeManifest   Mode = "manifest"
	ModeStrategies Mode = "strategies"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeManifest:
		return ModeManifest, nil
	case ModeStrategies:
		return ModeStrategies, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Downloader is the pip surface the fetch stage needs.
type Downloader interface {
	Download(ctx context.Context, req pip.DownloadRequest) error
}

// ManifestLoader reads specifiers for strategy mode.
type ManifestLoader interface {
	Load(ctx context.Context, src manifest.Source) ([]manifest.Specifier, error)
}

// Options configures the fetch stage.
type Options struct {
	Mode         Mode
	Matrix       Matrix
	DownloadAll  bool
	FlattenFirst bool
	// Companions maps a lowercase package name to extra packages downloaded with it.
	Companions map[string][]string
}

func DefaultOptions() Options {
	return Options{
		Mode:        ModeManifest,
		Matrix:      DefaultMatrix(),
		DownloadAll: true,
		Companions: map[string][]string{
			"pyautogui": {"setuptools", "wheel"},
		},
	}
}

// Fetcher downloads manifest archives into an artifact directory.
type Fetcher struct {
	opts   Options
	pip    Downloader
	loader ManifestLoader
	dir    artifacts.Dir
}

func New(opts Options, downloader Downloader, loader ManifestLoader, dir artifacts.Dir) *Fetcher {
	if opts.Mode == "" {
		opts.Mode = ModeManifest
	}
	return &Fetcher{opts: opts, pip: downloader, loader: loader, dir: dir}
}

// Run fetches every source in order. Failures are recorded and the next
// source still runs; the returned error is non-nil only for setup failures.
func (f *Fetcher) Run(ctx context.Context, sources []manifest.Source) (Report, error) {
	report := Report{Mode: f.opts.Mode}
	if err := f.dir.Ensure(); err != nil {
		return report, err
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var res SourceResult
		switch f.opts.Mode {
		case ModeStrategies:
			res = f.fetchStrategies(ctx, src)
		default:
			res = f.fetchManifest(ctx, src)
		}
		report.Sources = append(report.Sources, res)
	}
	return report, nil
}

func (f *Fetcher) fetchManifest(ctx context.Context, src manifest.Source) SourceResult {
	res := SourceResult{Source: src}
	if err := src.Validate(); err != nil {
		res.Err = err
		return res
	}
	log.Info().Str("component", "fetch").Msgf("fetch.Fetcher manifest=%s location=%s", src.Label(), src.Location)
	err := f.pip.Download(ctx, pip.DownloadRequest{
		Requirement: src.Location,
		Dest:        f.dir.Root(),
	})
	if err != nil {
		log.Warn().Str("component", "fetch").Err(err).Msgf("fetch.Fetcher manifest=%s failed", src.Label())
		res.Err = err
	}
	return res
}

func (f *Fetcher) fetchStrategies(ctx context.Context, src manifest.Source) SourceResult {
	res := SourceResult{Source: src}
	specs, err := f.loader.Load(ctx, src)
	if err != nil {
		log.Warn().Str("component", "fetch").Err(err).Msgf("fetch.Fetcher manifest=%s load failed", src.Label())
		res.Err = err
		return res
	}
	if len(specs) == 0 {
		log.Warn().Str("component", "fetch").Msgf("fetch.Fetcher manifest=%s has no specifiers", src.Label())
	}
	strategies := f.opts.Matrix.Strategies()
	for i, spec := range specs {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		progress := fmt.Sprintf("[%d/%d]", i+1, len(specs))
		res.Specifiers = append(res.Specifiers, f.fetchSpecifier(ctx, spec, strategies, progress))
	}
	return res
}

func (f *Fetcher) fetchSpecifier(ctx context.Context, spec manifest.Specifier, strategies []Strategy, progress string) SpecifierResult {
	res := SpecifierResult{Specifier: spec, Attempts: len(strategies)}
	logger := log.With().Str("component", "fetch").Str("package", spec.Name).Logger()
	logger.Info().Msgf("fetch.Fetcher processing %s spec=%q", progress, spec.Raw)

	subdir, err := f.dir.Sub(spec.SanitizedName())
	if err != nil {
		res.Err = err
		return res
	}
	res.Dir = subdir
	args := f.pipArgs(spec)

	for i, strategy := range strategies {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		attempt := fmt.Sprintf("[%d/%d]", i+1, len(strategies))
		err := f.pip.Download(ctx, pip.DownloadRequest{
			Specs: args,
			Dest:  subdir,
			Extra: strategy.Args,
		})
		if err != nil {
			logger.Warn().Msgf("fetch.Fetcher %s attempt %s failed strategy=%s", progress, attempt, strategy)
			continue
		}
		res.Succeeded++
		logger.Info().Msgf("fetch.Fetcher %s attempt %s succeeded strategy=%s", progress, attempt, strategy)
		if res.Succeeded == 1 && f.opts.FlattenFirst {
			n, err := f.dir.CopyFiles(subdir)
			if err != nil {
				logger.Error().Err(err).Msgf("fetch.Fetcher %s flatten failed dir=%s", progress, subdir)
			} else {
				logger.Info().Msgf("fetch.Fetcher %s flattened files=%d dir=%s", progress, n, subdir)
			}
		}
		if !f.opts.DownloadAll {
			res.Attempts = i + 1
			break
		}
	}
	if res.Succeeded == 0 {
		res.Err = fmt.Errorf("fetch: no strategy succeeded for %q after %d attempts", spec.Raw, res.Attempts)
		logger.Error().Msgf("fetch.Fetcher %s failed spec=%q attempts=%d", progress, spec.Raw, res.Attempts)
	}
	return res
}

// pipArgs appends configured companion packages to the specifier arguments.
func (f *Fetcher) pipArgs(spec manifest.Specifier) []string {
	args := spec.Args()
	extra, ok := f.opts.Companions[strings.ToLower(spec.Name)]
	if !ok {
		return args
	}
	return append(args, extra...)
}
