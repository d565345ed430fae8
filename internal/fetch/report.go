package fetch

import (
	"github.com/danmuck/wheelctl/internal/manifest"
)

// SpecifierResult is the strategy-mode outcome for one requirement line.
type SpecifierResult struct {
	Specifier manifest.Specifier
	Dir       string
	Attempts  int
	Succeeded int
	Err       error
}

func (r SpecifierResult) OK() bool {
	return r.Succeeded > 0
}

// SourceResult is the outcome for one manifest.
type SourceResult struct {
	Source     manifest.Source
	Specifiers []SpecifierResult
	Err        error
}

// OK is false when the manifest could not be fetched or any specifier failed.
func (r SourceResult) OK() bool {
	if r.Err != nil {
		return false
	}
	for _, s := range r.Specifiers {
		if !s.OK() {
			return false
		}
	}
	return true
}

type Report struct {
	Mode    Mode
	Sources []SourceResult
}

func (r Report) OK() bool {
	for _, s := range r.Sources {
		if !s.OK() {
			return false
		}
	}
	return true
}

// Succeeded lists specifiers with at least one successful strategy.
func (r Report) Succeeded() []SpecifierResult {
	var out []SpecifierResult
	for _, src := range r.Sources {
		for _, s := range src.Specifiers {
			if s.OK() {
				out = append(out, s)
			}
		}
	}
	return out
}

// Failed lists specifiers where every strategy failed.
func (r Report) Failed() []SpecifierResult {
	var out []SpecifierResult
	for _, src := range r.Sources {
		for _, s := range src.Specifiers {
			if !s.OK() {
				out = append(out, s)
			}
		}
	}
	return out
}

// FailedSources lists manifests that could not be fetched or loaded.
func (r Report) FailedSources() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}
