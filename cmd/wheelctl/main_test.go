package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/wheelctl/internal/testutil/fakerun"
	"github.com/danmuck/wheelctl/internal/testutil/testlog"
	"github.com/danmuck/wheelctl/internal/tools"
	"github.com/danmuck/wheelctl/internal/workflow"
)

func execute(t *testing.T, deps workflow.Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(deps)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fakePython(cmd tools.Command) (tools.Result, error) {
	switch {
	case len(cmd.Args) >= 3 && cmd.Args[1] == "venv":
		bin := filepath.Join(cmd.Args[2], "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			return tools.Result{}, err
		}
		return tools.Result{}, os.WriteFile(filepath.Join(bin, "python"), nil, 0o755)
	case len(cmd.Args) >= 3 && cmd.Args[2] == "download":
		dest := fakerun.ArgAfter(cmd, "--dest")
		name := strings.TrimSuffix(filepath.Base(fakerun.ArgAfter(cmd, "-r")), ".txt")
		wheel := fmt.Sprintf("%s-1.0-py3-none-any.whl", name)
		return tools.Result{}, os.WriteFile(filepath.Join(dest, wheel), []byte("wheel"), 0o644)
	case len(cmd.Args) >= 3 && cmd.Args[2] == "list":
		return tools.Result{Stdout: []byte(`[{"name":"pip","version":"24.0"}]`)}, nil
	}
	return tools.Result{}, nil
}

func writeWorkspaceConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	content := fmt.Sprintf(`namespace = %q
artifact_dir = %q
script.path = ""

[[manifests]]
name = "primary"
source = %q

[[manifests]]
name = "secondary"
source = %q
`,
		filepath.Join(root, ".venv_offline"),
		filepath.Join(root, "wheels_offline"),
		filepath.Join(root, "primary.txt"),
		filepath.Join(root, "secondary.txt"),
	)
	path := filepath.Join(root, "wheelctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return root, path
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "wheelctl.toml")

	out, err := execute(t, workflow.Deps{}, "config", "init", "--output", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := execute(t, workflow.Deps{}, "config", "init", "--output", path); err == nil {
		t.Fatalf("expected init to refuse overwrite")
	}

	out, err = execute(t, workflow.Deps{}, "config", "validate", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "config ok") || !strings.Contains(out, "manifests=2") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	testlog.Start(t)
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := execute(t, workflow.Deps{}, "--config", missing, "provision"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestRunWorkflowWithYes(t *testing.T) {
	testlog.Start(t)
	root, path := writeWorkspaceConfig(t)
	runner := &fakerun.Runner{Handle: fakePython}

	out, err := execute(t, workflow.Deps{Runner: runner}, "--config", path, "--yes")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wheelctl finished.") || !strings.Contains(out, "Install: 2 installed, 0 failed") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if len(runner.Matching("-m pip install")) != 2 {
		t.Fatalf("expected two installs, got %v", runner.Lines())
	}
	if _, err := os.Stat(filepath.Join(root, ".venv_offline", "bin", "python")); err != nil {
		t.Fatalf("expected namespace: %v", err)
	}
}

func TestRunProvisionFailureExits(t *testing.T) {
	testlog.Start(t)
	_, path := writeWorkspaceConfig(t)
	runner := &fakerun.Runner{Handle: func(tools.Command) (tools.Result, error) {
		return tools.Result{ExitCode: tools.ExitCodeNotFound}, nil
	}}
	if _, err := execute(t, workflow.Deps{Runner: runner}, "--config", path, "run", "--yes"); err == nil {
		t.Fatalf("expected provisioning failure")
	}
}

func TestSubcommands(t *testing.T) {
	testlog.Start(t)
	root, path := writeWorkspaceConfig(t)
	runner := &fakerun.Runner{Handle: fakePython}
	deps := workflow.Deps{Runner: runner}

	if _, err := execute(t, deps, "--config", path, "list"); err == nil {
		t.Fatalf("expected list to fail before provisioning")
	}
	if _, err := execute(t, deps, "--config", path, "provision"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	out, err := execute(t, deps, "--config", path, "fetch")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(out, "Artifacts: 2 archive(s)") {
		t.Fatalf("unexpected fetch summary:\n%s", out)
	}
	if _, err := execute(t, deps, "--config", path, "install"); err != nil {
		t.Fatalf("install: %v", err)
	}
	out, err = execute(t, deps, "--config", path, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "pip") {
		t.Fatalf("expected inventory output:\n%s", out)
	}
	if _, err := execute(t, deps, "--config", path, "teardown"); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".venv_offline")); !os.IsNotExist(err) {
		t.Fatalf("expected namespace removed, stat err=%v", err)
	}
}
