package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecorderStats(t *testing.T) {
	r := NewRecorder()
	r.RecordCall("download", 2*time.Second, true)
	r.RecordCall("download", 4*time.Second, false)
	r.RecordCall("install", 3*time.Second, true)

	stats := r.Stats()
	if stats.Count != 3 {
		t.Fatalf("unexpected count: %d", stats.Count)
	}
	if stats.Min != 2*time.Second || stats.Max != 4*time.Second {
		t.Fatalf("unexpected min/max: %v/%v", stats.Min, stats.Max)
	}
	if stats.Total != 9*time.Second || stats.Average != 3*time.Second {
		t.Fatalf("unexpected total/avg: %v/%v", stats.Total, stats.Average)
	}
}

func TestRecorderEmptyAndNil(t *testing.T) {
	if stats := NewRecorder().Stats(); stats.Count != 0 || stats.Min != 0 {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}
	var r *Recorder
	r.RecordCall("download", time.Second, true)
	if stats := r.Stats(); stats.Count != 0 {
		t.Fatalf("unexpected nil recorder stats: %+v", stats)
	}
}

func TestRecorderWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordCall("download", time.Second, true)
	r.RecordCall("download", time.Second, false)

	path := filepath.Join(t.TempDir(), "wheelctl.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `wheelctl_pip_calls_total{op="download",outcome="failure"} 1`) {
		t.Fatalf("missing failure counter:\n%s", out)
	}
	if !strings.Contains(out, "wheelctl_pip_call_duration_seconds_count") {
		t.Fatalf("missing histogram:\n%s", out)
	}
}
