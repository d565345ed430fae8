package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/wheelctl/internal/artifacts"
	"github.com/danmuck/wheelctl/internal/manifest"
	"github.com/danmuck/wheelctl/internal/pip"
	"github.com/danmuck/wheelctl/internal/testutil/testlog"
)

// fakeDownloader writes one wheel per specifier into the destination, as pip
// would, and fails for requirements listed in fail.
type fakeDownloader struct {
	requests []pip.DownloadRequest
	// manifests maps a requirement location to the wheels it resolves to.
	manifests map[string][]string
	fail      map[string]bool
	// succeedOn limits strategy mode success to attempts whose args contain the value.
	succeedOn string
}

func (d *fakeDownloader) Download(_ context.Context, req pip.DownloadRequest) error {
	d.requests = append(d.requests, req)
	if req.Requirement != "" {
		wheels, ok := d.manifests[req.Requirement]
		if !ok || d.fail[req.Requirement] {
			return fmt.Errorf("%w: could not open requirements file %s", pip.ErrCommandFailed, req.Requirement)
		}
		return writeWheels(req.Dest, wheels)
	}
	key := strings.Join(req.Specs, " ")
	if d.fail[key] {
		return pip.ErrCommandFailed
	}
	if d.succeedOn != "" && !strings.Contains(strings.Join(req.Extra, " "), d.succeedOn) {
		return pip.ErrCommandFailed
	}
	name, version, _ := strings.Cut(req.Specs[0], "==")
	if version == "" {
		version = "0.1"
	}
	return writeWheels(req.Dest, []string{fmt.Sprintf("%s-%s-py3-none-any.whl", name, version)})
}

func writeWheels(dest string, wheels []string) error {
	for _, w := range wheels {
		if err := os.WriteFile(filepath.Join(dest, w), []byte(w), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type staticLoader map[string][]manifest.Specifier

func (l staticLoader) Load(_ context.Context, src manifest.Source) ([]manifest.Specifier, error) {
	specs, ok := l[src.Location]
	if !ok {
		return nil, manifest.ErrUnreachable
	}
	return specs, nil
}

func newDir(t *testing.T) artifacts.Dir {
	t.Helper()
	dir, err := artifacts.NewDir(filepath.Join(t.TempDir(), "wheels_offline"))
	if err != nil {
		t.Fatalf("new dir: %v", err)
	}
	return dir
}

func TestDefaultMatrixStrategies(t *testing.T) {
	strategies := DefaultMatrix().Strategies()
	// 2 platforms x 7 versions x (none/cp, none/py, specific/cp) + current env.
	if len(strategies) != 43 {
		t.Fatalf("unexpected strategy count: %d", len(strategies))
	}
	first := strategies[0].String()
	if first != "--platform any --python-version 3.13 --abi none --implementation cp --only-binary=:all:" {
		t.Fatalf("unexpected first strategy: %q", first)
	}
	if third := strategies[2].String(); !strings.Contains(third, "--abi cp313 --implementation cp") {
		t.Fatalf("unexpected specific abi strategy: %q", third)
	}
	for _, s := range strategies {
		joined := s.String()
		if strings.Contains(joined, "--implementation py") && (strings.Contains(joined, "--abi cp") || strings.Contains(joined, "--abi abi")) {
			t.Fatalf("py implementation paired with cpython abi: %q", joined)
		}
	}
	if last := strategies[len(strategies)-1]; len(last.Args) != 0 || last.String() != "current-env" {
		t.Fatalf("expected trailing current-env strategy, got %q", last.String())
	}
}

func TestSpecificABI(t *testing.T) {
	cases := map[string]string{"3.13": "cp313", "3": "abi3", "310": "cp310"}
	for version, want := range cases {
		if got := SpecificABI(version); got != want {
			t.Fatalf("SpecificABI(%q) = %q, want %q", version, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeManifest {
		t.Fatalf("unexpected default mode: %q %v", m, err)
	}
	if m, err := ParseMode(" Strategies "); err != nil || m != ModeStrategies {
		t.Fatalf("unexpected strategies mode: %q %v", m, err)
	}
	if _, err := ParseMode("mirror"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestManifestModeFetchesEachSourceAndContinues(t *testing.T) {
	testlog.Start(t)
	dir := newDir(t)
	dl := &fakeDownloader{
		manifests: map[string][]string{
			"primary.txt": {"A-1.0-py3-none-any.whl", "dep-2.0-py3-none-any.whl"},
		},
	}
	f := New(Options{Mode: ModeManifest}, dl, nil, dir)

	report, err := f.Run(context.Background(), []manifest.Source{
		{Name: "remote", Location: "https://unreachable.invalid/requirements.txt"},
		{Name: "primary", Location: "primary.txt"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(dl.requests) != 2 {
		t.Fatalf("expected both manifests attempted, got %d", len(dl.requests))
	}
	if dl.requests[1].Dest != dir.Root() {
		t.Fatalf("unexpected destination: %q", dl.requests[1].Dest)
	}
	if report.OK() {
		t.Fatalf("expected report failure for unreachable manifest")
	}
	failed := report.FailedSources()
	if len(failed) != 1 || failed[0].Source.Name != "remote" {
		t.Fatalf("unexpected failed sources: %+v", failed)
	}

	archives, err := dir.Archives()
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if len(archives) != 2 || archives[0].Name != "A" || archives[0].Version != "1.0" {
		t.Fatalf("unexpected archives: %+v", archives)
	}
}

func TestManifestModeIdempotent(t *testing.T) {
	dir := newDir(t)
	dl := &fakeDownloader{manifests: map[string][]string{"a.txt": {"A-1.0-py3-none-any.whl"}}}
	f := New(Options{Mode: ModeManifest}, dl, nil, dir)
	sources := []manifest.Source{{Location: "a.txt"}}

	if _, err := f.Run(context.Background(), sources); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := dir.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := f.Run(context.Background(), sources); err != nil {
		t.Fatalf("second run: %v", err)
	}
	after, err := dir.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(before) != 1 || len(after) != len(before) {
		t.Fatalf("artifact set changed: before=%v after=%v", before, after)
	}
}

func TestUnreachableManifestLeavesDirUnchanged(t *testing.T) {
	dir := newDir(t)
	if err := dir.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := writeWheels(dir.Root(), []string{"old-1.0-py3-none-any.whl"}); err != nil {
		t.Fatalf("seed archive: %v", err)
	}
	before, _ := dir.Snapshot()

	f := New(Options{Mode: ModeManifest}, &fakeDownloader{}, nil, dir)
	report, err := f.Run(context.Background(), []manifest.Source{{Location: "https://unreachable.invalid/r.txt"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.OK() {
		t.Fatalf("expected failure report")
	}
	after, _ := dir.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("artifact dir changed: before=%v after=%v", before, after)
	}
}

func TestStrategyModeDownloadsPerPackageSubdir(t *testing.T) {
	testlog.Start(t)
	dir := newDir(t)
	dl := &fakeDownloader{fail: map[string]bool{"broken": true}}
	loader := staticLoader{
		"tools.txt": {
			manifest.ParseSpecifier("A==1.0"),
			manifest.ParseSpecifier("PyAutoGUI"),
			manifest.ParseSpecifier("broken"),
		},
	}
	opts := DefaultOptions()
	opts.Mode = ModeStrategies
	opts.Matrix = Matrix{Platforms: []string{"any"}, PythonVersions: []string{"3.12"}, Implementations: []string{"cp"}, OnlyBinary: true}
	f := New(opts, dl, loader, dir)

	report, err := f.Run(context.Background(), []manifest.Source{{Name: "tools", Location: "tools.txt"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// none/cp, cp312/cp, current-env per specifier.
	if len(dl.requests) != 9 {
		t.Fatalf("unexpected download count: %d", len(dl.requests))
	}
	if got := strings.Join(dl.requests[3].Specs, " "); got != "PyAutoGUI setuptools wheel" {
		t.Fatalf("expected companions appended, got %q", got)
	}
	if dl.requests[0].Dest != filepath.Join(dir.Root(), "A") {
		t.Fatalf("unexpected subdir: %q", dl.requests[0].Dest)
	}

	succeeded := report.Succeeded()
	if len(succeeded) != 2 || succeeded[0].Succeeded != 3 {
		t.Fatalf("unexpected successes: %+v", succeeded)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Specifier.Name != "broken" || failed[0].Attempts != 3 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	archives, err := dir.Archives()
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if len(archives) != 2 || archives[0].RelPath != "A/A-1.0-py3-none-any.whl" {
		t.Fatalf("unexpected archives: %+v", archives)
	}
}

func TestStrategyModeStopsAtFirstSuccessAndFlattens(t *testing.T) {
	dir := newDir(t)
	dl := &fakeDownloader{succeedOn: "cp312"}
	loader := staticLoader{"a.txt": {manifest.ParseSpecifier("A==1.0")}}
	opts := Options{
		Mode:         ModeStrategies,
		Matrix:       Matrix{Platforms: []string{"any"}, PythonVersions: []string{"3.12"}, Implementations: []string{"cp"}},
		DownloadAll:  false,
		FlattenFirst: true,
	}
	f := New(opts, dl, loader, dir)

	report, err := f.Run(context.Background(), []manifest.Source{{Location: "a.txt"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(dl.requests) != 2 {
		t.Fatalf("expected stop after second attempt, got %d requests", len(dl.requests))
	}
	res := report.Sources[0].Specifiers[0]
	if res.Attempts != 2 || res.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir.Root(), "A-1.0-py3-none-any.whl")); err != nil {
		t.Fatalf("expected flattened wheel in root: %v", err)
	}
}

func TestStrategyModeFlattenKeepsOneArchive(t *testing.T) {
	dir := newDir(t)
	dl := &fakeDownloader{}
	loader := staticLoader{"a.txt": {manifest.ParseSpecifier("A==1.0")}}
	opts := Options{
		Mode:         ModeStrategies,
		Matrix:       Matrix{Platforms: []string{"any"}, PythonVersions: []string{"3.12"}, Implementations: []string{"cp"}},
		DownloadAll:  true,
		FlattenFirst: true,
	}
	f := New(opts, dl, loader, dir)

	if _, err := f.Run(context.Background(), []manifest.Source{{Location: "a.txt"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir.Root(), "A-1.0-py3-none-any.whl")); err != nil {
		t.Fatalf("expected flattened wheel in root: %v", err)
	}
	archives, err := dir.Archives()
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if len(archives) != 1 || archives[0].RelPath != "A/A-1.0-py3-none-any.whl" {
		t.Fatalf("expected one archive for one wheel, got %+v", archives)
	}
}

func TestStrategyModeLoadFailure(t *testing.T) {
	dir := newDir(t)
	opts := DefaultOptions()
	opts.Mode = ModeStrategies
	f := New(opts, &fakeDownloader{}, staticLoader{}, dir)

	report, err := f.Run(context.Background(), []manifest.Source{{Location: "missing.txt"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	failed := report.FailedSources()
	if len(failed) != 1 || !errors.Is(failed[0].Err, manifest.ErrUnreachable) {
		t.Fatalf("unexpected failed sources: %+v", failed)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Options{}, &fakeDownloader{}, nil, newDir(t))
	if _, err := f.Run(ctx, []manifest.Source{{Location: "a.txt"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
