package pip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/wheelctl/internal/observability"
	"github.com/danmuck/wheelctl/internal/tools"
	"github.com/danmuck/wheelctl/internal/venv"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotActive     = errors.New("pip: no active namespace")
	ErrCommandFailed = errors.New("pip: command failed")
	ErrInvalidList   = errors.New("pip: invalid list output")
)

const disableVersionCheck = "--disable-pip-version-check"

// Package is one installed distribution.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Config configures a Client.
type Config struct {
	// Python runs pip for downloads when no namespace is active.
	Python   string
	Runner   tools.CommandRunner
	Recorder *observability.Recorder
	Stdout   io.Writer
	Stderr   io.Writer
}

// Client drives `python -m pip` through a command runner.
type Client struct {
	python   string
	runner   tools.CommandRunner
	recorder *observability.Recorder
	stdout   io.Writer
	stderr   io.Writer
	active   *venv.Activation
}

func NewClient(cfg Config) *Client {
	python := strings.TrimSpace(cfg.Python)
	if python == "" {
		python = "python3"
	}
	runner := cfg.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	return &Client{
		python:   python,
		runner:   runner,
		recorder: cfg.Recorder,
		stdout:   cfg.Stdout,
		stderr:   cfg.Stderr,
	}
}

// Bind routes later operations through the activated namespace.
func (c *Client) Bind(act *venv.Activation) {
	c.active = act
}

// Unbind clears the active namespace.
func (c *Client) Unbind() {
	c.active = nil
}

func (c *Client) Active() bool {
	return c.active != nil
}

// DownloadRequest describes one `pip download` invocation.
type DownloadRequest struct {
	// Requirement is passed with -r when set.
	Requirement string
	// Specs are positional requirement arguments.
	Specs []string
	Dest  string
	// Extra holds platform/version/abi flags.
	Extra []string
}

func (r DownloadRequest) args() []string {
	args := []string{"-m", "pip", "download", "--dest", r.Dest, disableVersionCheck}
	args = append(args, r.Extra...)
	if r.Requirement != "" {
		args = append(args, "-r", r.Requirement)
	}
	return append(args, r.Specs...)
}

// Download fetches archives without installing them. It does not need an
// active namespace.
func (c *Client) Download(ctx context.Context, req DownloadRequest) error {
	if strings.TrimSpace(req.Dest) == "" {
		return fmt.Errorf("%w: download without destination", ErrCommandFailed)
	}
	_, err := c.run(ctx, "download", req.args(), true)
	return err
}

// InstallRequest describes one `pip install` of a single archive.
type InstallRequest struct {
	Archive   string
	FindLinks []string
	NoIndex   bool
}

func (r InstallRequest) args() []string {
	args := []string{"-m", "pip", "install", disableVersionCheck}
	if r.NoIndex {
		args = append(args, "--no-index")
	}
	for _, link := range r.FindLinks {
		args = append(args, "--find-links", link)
	}
	return append(args, r.Archive)
}

// Install installs one archive into the active namespace.
func (c *Client) Install(ctx context.Context, req InstallRequest) error {
	if c.active == nil {
		return ErrNotActive
	}
	_, err := c.run(ctx, "install", req.args(), true)
	return err
}

// List returns the packages installed in the active namespace.
func (c *Client) List(ctx context.Context) ([]Package, error) {
	if c.active == nil {
		return nil, ErrNotActive
	}
	res, err := c.run(ctx, "list", []string{"-m", "pip", "list", "--format=json", disableVersionCheck}, false)
	if err != nil {
		return nil, err
	}
	return ParseList(res.Stdout)
}

// ParseList decodes `pip list --format=json` output.
func ParseList(data []byte) ([]Package, error) {
	var pkgs []Package
	if err := json.Unmarshal(data, &pkgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidList, err)
	}
	return pkgs, nil
}

func (c *Client) interpreter() string {
	if c.active != nil {
		return c.active.Interpreter
	}
	return c.python
}

func (c *Client) run(ctx context.Context, op string, args []string, stream bool) (tools.Result, error) {
	cmd := tools.Command{Name: c.interpreter(), Args: args}
	if c.active != nil {
		cmd.Env = c.active.Env
	}
	if stream {
		cmd.Stdout = c.stdout
	}
	cmd.Stderr = c.stderr

	log.Info().Str("component", "pip").Str("op", op).Msgf("pip.Client exec cmd=%s", cmd)
	res, err := c.runner.Run(ctx, cmd)
	c.recorder.RecordCall(op, res.Duration, err == nil)
	if err == nil {
		return res, nil
	}
	return res, fmt.Errorf(
		"%w: op=%s cmd=%s exit=%d stderr=%q: %v",
		ErrCommandFailed,
		op,
		cmd,
		res.ExitCode,
		lastLine(res.Stderr),
		err,
	)
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
