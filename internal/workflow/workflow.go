package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/danmuck/wheelctl/internal/artifacts"
	"github.com/danmuck/wheelctl/internal/fetch"
	"github.com/danmuck/wheelctl/internal/gate"
	"github.com/danmuck/wheelctl/internal/install"
	"github.com/danmuck/wheelctl/internal/manifest"
	"github.com/danmuck/wheelctl/internal/observability"
	"github.com/danmuck/wheelctl/internal/pip"
	"github.com/danmuck/wheelctl/internal/script"
	"github.com/danmuck/wheelctl/internal/tools"
	"github.com/danmuck/wheelctl/internal/venv"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Workflow runs against.
type Deps struct {
	Runner   tools.CommandRunner
	Loader   fetch.ManifestLoader
	Gate     gate.Gate
	Recorder *observability.Recorder
	// Stdout receives collaborator output and inventory tables.
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
}

// Workflow runs the provision -> fetch -> install -> teardown pipeline.
type Workflow struct {
	cfg       Config
	ns        *venv.Namespace
	pip       *pip.Client
	dir       artifacts.Dir
	fetcher   *fetch.Fetcher
	installer *install.Installer
	gate      gate.Gate
	recorder  *observability.Recorder
	stdout    io.Writer
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stdout := deps.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	runner := deps.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	loader := deps.Loader
	if loader == nil {
		loader = manifest.NewLoader()
	}
	g := deps.Gate
	if g == nil {
		g = gate.Auto{}
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = observability.NewRecorder()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	ns, err := venv.New(venv.Config{
		Dir:    cfg.Namespace,
		Python: cfg.Python,
		Runner: runner,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}
	dir, err := artifacts.NewDir(cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	client := pip.NewClient(pip.Config{
		Python:   cfg.Python,
		Runner:   runner,
		Recorder: recorder,
		Stdout:   stdout,
		Stderr:   stderr,
	})
	return &Workflow{
		cfg:       cfg,
		ns:        ns,
		pip:       client,
		dir:       dir,
		fetcher:   fetch.New(cfg.Fetch, client, loader, dir),
		installer: install.New(cfg.Install, client, dir),
		gate:      g,
		recorder:  recorder,
		stdout:    stdout,
		now:       now,
	}, nil
}

// Run executes every stage with gates in between. Only provisioning,
// activation and gate cancellation stop the pipeline; other failures are
// recorded on the report.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	started := w.now()
	report := &Report{ArtifactDir: w.dir.Root()}
	defer w.finish(report, started)

	if err := w.stage(report, StageProvision, func() error { return w.Provision(ctx) }); err != nil {
		return report, err
	}
	if err := w.gate.Wait(ctx, StageActivate); err != nil {
		return report, err
	}
	if err := w.stage(report, StageActivate, w.Activate); err != nil {
		return report, err
	}
	if err := w.gate.Wait(ctx, StageInventoryPre); err != nil {
		return report, err
	}
	_ = w.stage(report, StageInventoryPre, func() error {
		pkgs, err := w.Inventory(ctx)
		report.Before = pkgs
		return err
	})

	if err := w.gate.Wait(ctx, StageFetch); err != nil {
		return report, err
	}
	_ = w.stage(report, StageFetch, func() error {
		res, path, err := w.Fetch(ctx)
		report.Fetch = res
		report.ScriptPath = path
		return err
	})

	if err := w.gate.Wait(ctx, StageInstall); err != nil {
		return report, err
	}
	_ = w.stage(report, StageInstall, func() error {
		res, err := w.Install(ctx)
		report.Install = res
		return err
	})

	if err := w.gate.Wait(ctx, StageInventoryPost); err != nil {
		return report, err
	}
	_ = w.stage(report, StageInventoryPost, func() error {
		pkgs, err := w.Inventory(ctx)
		report.After = pkgs
		return err
	})

	if err := w.gate.Wait(ctx, StageDeactivate); err != nil {
		return report, err
	}
	_ = w.stage(report, StageDeactivate, func() error {
		w.Deactivate()
		return nil
	})

	if !w.cfg.Teardown {
		report.record(StageTeardown, StageSkipped, nil, 0)
		return report, nil
	}
	if err := w.gate.Wait(ctx, StageTeardown); err != nil {
		return report, err
	}
	_ = w.stage(report, StageTeardown, w.Teardown)
	return report, nil
}

func (w *Workflow) stage(report *Report, name string, fn func() error) error {
	log.Info().Str("component", "workflow").Str("stage", name).Msg("workflow.stage start")
	start := w.now()
	err := fn()
	d := w.now().Sub(start)
	if err != nil {
		log.Warn().Str("component", "workflow").Str("stage", name).Err(err).Msg("workflow.stage failed")
		report.record(name, StageFailed, err, d)
		return err
	}
	report.record(name, StageOK, nil, d)
	return nil
}

func (w *Workflow) finish(report *Report, started time.Time) {
	if archives, err := w.dir.Archives(); err == nil {
		report.Archives = archives
	}
	report.Calls = w.recorder.Stats()
	report.Elapsed = w.now().Sub(started)
	if path := w.cfg.Metrics.Textfile; path != "" {
		if err := w.recorder.WriteTextfile(path); err != nil {
			log.Error().Str("component", "workflow").Err(err).Msgf("workflow.finish metrics textfile=%s", path)
		}
	}
}

// Provision creates the namespace.
func (w *Workflow) Provision(ctx context.Context) error {
	return w.ns.Create(ctx)
}

// Activate binds pip to the namespace.
func (w *Workflow) Activate() error {
	act, err := w.ns.Activate()
	if err != nil {
		return err
	}
	w.pip.Bind(act)
	return nil
}

// ActivateIfPresent binds the namespace when it exists, leaving pip on the
// base interpreter otherwise.
func (w *Workflow) ActivateIfPresent() bool {
	if !w.ns.Exists() {
		return false
	}
	return w.Activate() == nil
}

// Deactivate returns pip to the base interpreter.
func (w *Workflow) Deactivate() {
	w.pip.Unbind()
	log.Info().Str("component", "workflow").Msgf("workflow.Deactivate namespace=%s", w.ns.Dir())
}

// Inventory lists the active namespace's packages and prints them.
func (w *Workflow) Inventory(ctx context.Context) ([]pip.Package, error) {
	pkgs, err := w.pip.List(ctx)
	if err != nil {
		return nil, err
	}
	tw := tabwriter.NewWriter(w.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION")
	for _, p := range pkgs {
		fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Version)
	}
	if err := tw.Flush(); err != nil {
		return pkgs, err
	}
	return pkgs, nil
}

// Fetch downloads every manifest and writes the install script when
// configured. It returns the script path written, if any.
func (w *Workflow) Fetch(ctx context.Context) (fetch.Report, string, error) {
	before, err := w.dir.Snapshot()
	if err != nil {
		return fetch.Report{}, "", err
	}
	res, err := w.fetcher.Run(ctx, w.cfg.Manifests)
	if err != nil {
		return res, "", err
	}
	if after, err := w.dir.Snapshot(); err == nil {
		added := 0
		for rel := range after {
			if _, ok := before[rel]; !ok {
				added++
			}
		}
		log.Info().Str("component", "workflow").Msgf("workflow.Fetch archives=%d new=%d dir=%s", len(after), added, w.dir.Root())
	}
	path, scriptErr := w.writeScript(res)
	if scriptErr != nil {
		log.Error().Str("component", "workflow").Err(scriptErr).Msg("workflow.Fetch script write failed")
	}
	if !res.OK() {
		return res, path, errors.Join(fetchFailure(res), scriptErr)
	}
	return res, path, scriptErr
}

func fetchFailure(res fetch.Report) error {
	return fmt.Errorf(
		"fetch: %d manifest(s) failed, %d requirement(s) without archives",
		len(res.FailedSources()),
		len(res.Failed()),
	)
}

func (w *Workflow) writeScript(res fetch.Report) (string, error) {
	path := w.cfg.Script.Path
	if path == "" {
		return "", nil
	}
	in := script.Instructions{ArtifactDir: w.dir.Root(), Namespace: w.cfg.Namespace}
	if res.Mode == fetch.ModeStrategies {
		for _, s := range res.Succeeded() {
			in.Entries = append(in.Entries, script.Entry{
				Comment:   fmt.Sprintf("Install '%s' (original requirement)", s.Specifier.Raw),
				FindLinks: s.Dir,
				Target:    s.Specifier.Raw,
			})
		}
	} else {
		archives, err := w.dir.Archives()
		if err != nil {
			return "", err
		}
		for _, a := range archives {
			in.Entries = append(in.Entries, script.Entry{
				Comment:   "Install " + a.RelPath,
				FindLinks: w.dir.Root(),
				Target:    a.Path,
			})
		}
	}
	if err := script.Write(path, w.cfg.Script.Format, in); err != nil {
		return "", err
	}
	log.Info().Str("component", "workflow").Msgf("workflow.Fetch script=%s entries=%d", path, len(in.Entries))
	return path, nil
}

// Install installs every archive into the active namespace.
func (w *Workflow) Install(ctx context.Context) (install.Report, error) {
	if !w.pip.Active() {
		return install.Report{}, pip.ErrNotActive
	}
	res, err := w.installer.Run(ctx)
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, fmt.Errorf("install: %d of %d archive(s) failed", len(res.Failed()), len(res.Results))
	}
	return res, nil
}

// Teardown deletes the namespace directory.
func (w *Workflow) Teardown() error {
	w.pip.Unbind()
	return w.ns.Destroy()
}

// Archives lists the artifact directory contents.
func (w *Workflow) Archives() ([]artifacts.Archive, error) {
	return w.dir.Archives()
}

// Stats returns pip timing collected so far.
func (w *Workflow) Stats() observability.CallStats {
	return w.recorder.Stats()
}

// WriteMetrics exports metrics when a textfile is configured.
func (w *Workflow) WriteMetrics() error {
	if w.cfg.Metrics.Textfile == "" {
		return nil
	}
	return w.recorder.WriteTextfile(w.cfg.Metrics.Textfile)
}
