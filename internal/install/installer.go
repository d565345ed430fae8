package install

import (
	"context"
	"fmt"

	"github.com/danmuck/wheelctl/internal/artifacts"
	"github.com/danmuck/wheelctl/internal/pip"
	"github.com/rs/zerolog/log"
)

// ArchiveInstaller is the pip surface the install stage needs.
type ArchiveInstaller interface {
	Install(ctx context.Context, req pip.InstallRequest) error
}

type Options struct {
	// Offline installs with --no-index and the artifact directories as find-links.
	Offline bool
}

// Installer installs every archive of an artifact directory, one pip call each.
type Installer struct {
	opts Options
	pip  ArchiveInstaller
	dir  artifacts.Dir
}

func New(opts Options, installer ArchiveInstaller, dir artifacts.Dir) *Installer {
	return &Installer{opts: opts, pip: installer, dir: dir}
}

// ArchiveResult is the outcome for one archive.
type ArchiveResult struct {
	Archive artifacts.Archive
	Err     error
}

type Report struct {
	Results []ArchiveResult
}

func (r Report) Installed() []ArchiveResult {
	var out []ArchiveResult
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

func (r Report) Failed() []ArchiveResult {
	var out []ArchiveResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Run enumerates archives once, in lexical order, and installs each. A failed
// archive is recorded and the loop continues.
func (i *Installer) Run(ctx context.Context) (Report, error) {
	var report Report
	archives, err := i.dir.Archives()
	if err != nil {
		return report, fmt.Errorf("install: enumerate %s: %w", i.dir.Root(), err)
	}
	var links []string
	if i.opts.Offline {
		links, err = i.dir.Subdirs()
		if err != nil {
			return report, fmt.Errorf("install: enumerate %s: %w", i.dir.Root(), err)
		}
	}
	if len(archives) == 0 {
		log.Warn().Str("component", "install").Msgf("install.Installer no archives dir=%s", i.dir.Root())
		return report, nil
	}

	for n, archive := range archives {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log.Info().Str("component", "install").Msgf("install.Installer [%d/%d] archive=%s", n+1, len(archives), archive.RelPath)
		err := i.pip.Install(ctx, pip.InstallRequest{
			Archive:   archive.Path,
			FindLinks: links,
			NoIndex:   i.opts.Offline,
		})
		if err != nil {
			log.Warn().Str("component", "install").Err(err).Msgf("install.Installer archive=%s failed", archive.RelPath)
		}
		report.Results = append(report.Results, ArchiveResult{Archive: archive, Err: err})
	}
	return report, nil
}
