package venv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/danmuck/wheelctl/internal/tools"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidNamespace = errors.New("venv: invalid namespace")
	ErrCreate           = errors.New("venv: create failed")
	ErrNotProvisioned   = errors.New("venv: namespace not provisioned")
	ErrUnsafePath       = errors.New("venv: refusing to remove path")
)

// Config configures one namespace.
type Config struct {
	Dir    string
	Python string
	Runner tools.CommandRunner
	Stdout io.Writer
	Stderr io.Writer
	// GOOS overrides runtime.GOOS for interpreter layout.
	GOOS string
}

// Namespace is an isolated package environment rooted at a directory.
type Namespace struct {
	dir    string
	python string
	runner tools.CommandRunner
	stdout io.Writer
	stderr io.Writer
	goos   string
}

func New(cfg Config) (*Namespace, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: missing directory", ErrInvalidNamespace)
	}
	python := strings.TrimSpace(cfg.Python)
	if python == "" {
		python = "python3"
	}
	runner := cfg.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return &Namespace{
		dir:    filepath.Clean(dir),
		python: python,
		runner: runner,
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		goos:   goos,
	}, nil
}

func (n *Namespace) Dir() string {
	return n.dir
}

// BinDir is the directory holding the namespace interpreter and scripts.
func (n *Namespace) BinDir() string {
	if n.goos == "windows" {
		return filepath.Join(n.dir, "Scripts")
	}
	return filepath.Join(n.dir, "bin")
}

// Interpreter is the namespace python executable.
func (n *Namespace) Interpreter() string {
	if n.goos == "windows" {
		return filepath.Join(n.BinDir(), "python.exe")
	}
	return filepath.Join(n.BinDir(), "python")
}

// Exists reports whether the namespace interpreter is present.
func (n *Namespace) Exists() bool {
	_, err := os.Stat(n.Interpreter())
	return err == nil
}

// Create runs `<python> -m venv <dir>`. Existing directories are passed through as is.
func (n *Namespace) Create(ctx context.Context) error {
	cmd := tools.Command{
		Name:   n.python,
		Args:   []string{"-m", "venv", n.dir},
		Stdout: n.stdout,
		Stderr: n.stderr,
	}
	log.Info().Str("component", "venv").Msgf("venv.Namespace.Create exec cmd=%s", cmd)
	res, err := n.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf(
			"%w: cmd=%s exit=%d stderr=%q: %v",
			ErrCreate,
			cmd,
			res.ExitCode,
			strings.TrimSpace(string(res.Stderr)),
			err,
		)
	}
	return nil
}

// Activate binds later operations to the namespace.
func (n *Namespace) Activate() (*Activation, error) {
	if !n.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, n.Interpreter())
	}
	abs, err := filepath.Abs(n.dir)
	if err != nil {
		return nil, err
	}
	interpreter, err := filepath.Abs(n.Interpreter())
	if err != nil {
		return nil, err
	}
	bin, err := filepath.Abs(n.BinDir())
	if err != nil {
		return nil, err
	}
	act := &Activation{
		Root:        abs,
		Interpreter: interpreter,
		Env:         activatedEnv(os.Environ(), abs, bin),
	}
	log.Info().Str("component", "venv").Msgf("venv.Namespace.Activate root=%s", abs)
	return act, nil
}

// Destroy removes the namespace directory. A missing directory is not an error.
func (n *Namespace) Destroy() error {
	if err := checkRemovable(n.dir); err != nil {
		return err
	}
	log.Info().Str("component", "venv").Msgf("venv.Namespace.Destroy dir=%s", n.dir)
	if err := os.RemoveAll(n.dir); err != nil {
		return fmt.Errorf("venv: remove %s: %w", n.dir, err)
	}
	return nil
}

func checkRemovable(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if abs == filepath.Dir(abs) {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafePath, abs)
	}
	wd, err := os.Getwd()
	if err == nil && filepath.Clean(wd) == abs {
		return fmt.Errorf("%w: %s is the working directory", ErrUnsafePath, abs)
	}
	return nil
}
