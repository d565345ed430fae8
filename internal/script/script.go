package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var ErrUnknownFormat = errors.New("script: unknown format")

type Format string

const (
	FormatShell Format = "sh"
	FormatBatch Format = "bat"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatShell:
		return FormatShell, nil
	case FormatBatch:
		return FormatBatch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Entry is one offline install step.
type Entry struct {
	Comment   string
	FindLinks string
	Target    string
}

// Instructions is the data rendered into the offline install script.
type Instructions struct {
	ArtifactDir string
	Namespace   string
	Entries     []Entry
}

var templates = map[Format]*template.Template{
	FormatShell: template.Must(template.New("sh").Funcs(sprig.TxtFuncMap()).Parse(shellTemplate)),
	FormatBatch: template.Must(template.New("bat").Funcs(sprig.TxtFuncMap()).Parse(batchTemplate)),
}

// Render produces the script text for format.
func Render(format Format, in Instructions) ([]byte, error) {
	tmpl, ok := templates[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return nil, fmt.Errorf("script: render %s: %w", format, err)
	}
	out := buf.Bytes()
	if format == FormatBatch {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	return out, nil
}

// Write renders and writes the script, marking shell scripts executable.
func Write(path string, format Format, in Instructions) error {
	data, err := Render(format, in)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	perm := os.FileMode(0o644)
	if format == FormatShell {
		perm = 0o755
	}
	return os.WriteFile(path, data, perm)
}

const shellTemplate = `#!/bin/sh
# Generated by wheelctl for offline installation.
# Artifact directory: {{ .ArtifactDir }}
#
# Optional: create and activate a virtual environment first.
# python3 -m venv {{ .Namespace | default ".venv_offline" }}
# . {{ .Namespace | default ".venv_offline" }}/bin/activate

echo "Checking pip version and compatible tags..."
pip --version
pip debug --verbose
echo "Listing packages before installation..."
pip list
echo "============================================================"
echo "Starting installations..."
{{ range .Entries }}
# {{ .Comment }}
pip install --no-index --find-links {{ .FindLinks | squote }} {{ .Target | squote }}
{{ end }}
echo "============================================================"
echo "Listing packages after installation..."
pip list
# Optional: deactivate
`

const batchTemplate = `@echo off
REM Generated by wheelctl for offline installation.
REM Artifact directory: {{ .ArtifactDir }}
echo.
REM Optional: create and activate a virtual environment first.
REM python -m venv {{ .Namespace | default ".venv_offline" }}
REM call {{ .Namespace | default ".venv_offline" | replace "/" "\\" }}\Scripts\activate
echo.
echo Checking pip version and compatible tags...
pip --version
pip debug --verbose
echo.
echo Listing packages before installation...
pip list
echo ============================================================
echo Starting installations...
echo.
{{ range .Entries }}
REM {{ .Comment }}
pip install --no-index --find-links "{{ .FindLinks | replace "/" "\\" }}" "{{ .Target | replace "/" "\\" }}"
{{ end }}
echo.
echo ============================================================
echo Listing packages after installation...
pip list
echo ============================================================
REM Optional: call deactivate
echo.
`
