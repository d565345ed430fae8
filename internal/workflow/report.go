package workflow

import (
	"fmt"
	"io"
	"time"

	"github.com/danmuck/wheelctl/internal/artifacts"
	"github.com/danmuck/wheelctl/internal/fetch"
	"github.com/danmuck/wheelctl/internal/install"
	"github.com/danmuck/wheelctl/internal/observability"
	"github.com/danmuck/wheelctl/internal/pip"
	"github.com/dustin/go-humanize"
)

type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// Stage names in pipeline order.
const (
	StageProvision     = "provision"
	StageActivate      = "activate"
	StageInventoryPre  = "inventory-pre"
	StageFetch         = "fetch"
	StageInstall       = "install"
	StageInventoryPost = "inventory-post"
	StageDeactivate    = "deactivate"
	StageTeardown      = "teardown"
)

type StageResult struct {
	Name     string
	Status   StageStatus
	Err      error
	Duration time.Duration
}

// Report is the outcome of one workflow run.
type Report struct {
	Stages      []StageResult
	Fetch       fetch.Report
	Install     install.Report
	Before      []pip.Package
	After       []pip.Package
	Archives    []artifacts.Archive
	ArtifactDir string
	ScriptPath  string
	Calls       observability.CallStats
	Elapsed     time.Duration
}

func (r *Report) record(name string, status StageStatus, err error, d time.Duration) {
	r.Stages = append(r.Stages, StageResult{Name: name, Status: status, Err: err, Duration: d})
}

// Stage returns the result for name.
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Summary prints the final operator summary.
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintln(w, "==================================================================")
	fmt.Fprintln(w, "wheelctl finished.")
	for _, s := range r.Stages {
		line := fmt.Sprintf("  %-15s %-8s %s", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		if s.Err != nil {
			line += "  " + s.Err.Error()
		}
		fmt.Fprintln(w, line)
	}

	if len(r.Fetch.Sources) > 0 {
		fmt.Fprintf(w, "Fetch (%s mode): %d manifest(s)\n", r.Fetch.Mode, len(r.Fetch.Sources))
		for _, src := range r.Fetch.FailedSources() {
			fmt.Fprintf(w, "  FAILED manifest %s: %v\n", src.Source.Label(), src.Err)
		}
		if r.Fetch.Mode == fetch.ModeStrategies {
			ok := r.Fetch.Succeeded()
			failed := r.Fetch.Failed()
			fmt.Fprintf(w, "  %d/%d requirement(s) had at least one successful download strategy.\n", len(ok), len(ok)+len(failed))
			for _, s := range failed {
				fmt.Fprintf(w, "  FAILED %s after %d attempt(s)\n", s.Specifier.Raw, s.Attempts)
			}
			if len(failed) > 0 {
				fmt.Fprintln(w, "  Offline installation will likely fail for these packages.")
			}
		}
	}
	fmt.Fprintf(w, "Artifacts: %d archive(s), %s in %s\n", len(r.Archives), humanize.Bytes(artifacts.TotalSize(r.Archives)), r.ArtifactDir)

	if len(r.Install.Results) > 0 {
		fmt.Fprintf(w, "Install: %d installed, %d failed\n", len(r.Install.Installed()), len(r.Install.Failed()))
		for _, res := range r.Install.Failed() {
			fmt.Fprintf(w, "  FAILED %s\n", res.Archive.RelPath)
		}
	}
	if r.Before != nil || r.After != nil {
		fmt.Fprintf(w, "Inventory: %d package(s) before, %d after\n", len(r.Before), len(r.After))
	}
	if r.ScriptPath != "" {
		fmt.Fprintf(w, "Review %s for offline installation steps.\n", r.ScriptPath)
	}

	if r.Calls.Count > 0 {
		fmt.Fprintln(w, "--- pip timing ---")
		fmt.Fprintf(w, "  Total pip calls:       %d\n", r.Calls.Count)
		fmt.Fprintf(w, "  Total time in pip:     %.2f seconds\n", r.Calls.Total.Seconds())
		fmt.Fprintf(w, "  Minimum time per call: %.4f seconds\n", r.Calls.Min.Seconds())
		fmt.Fprintf(w, "  Maximum time per call: %.4f seconds\n", r.Calls.Max.Seconds())
		fmt.Fprintf(w, "  Average time per call: %.4f seconds\n", r.Calls.Average.Seconds())
	} else {
		fmt.Fprintln(w, "--- no pip calls were recorded ---")
	}
	minutes := int(r.Elapsed / time.Minute)
	seconds := (r.Elapsed % time.Minute).Seconds()
	fmt.Fprintf(w, "--- finished in: %d minutes and %.2f seconds ---\n", minutes, seconds)
}
