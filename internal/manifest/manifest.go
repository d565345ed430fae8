package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	ErrInvalidSource = errors.New("manifest: invalid source")
	ErrUnreachable   = errors.New("manifest: source unreachable")
)

var sanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Source names one dependency manifest by URL or local path.
type Source struct {
	Name     string
	Location string
}

// IsRemote reports whether the location is fetched over HTTP.
func (s Source) IsRemote() bool {
	loc := strings.ToLower(strings.TrimSpace(s.Location))
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// Label is the name used in logs and reports, falling back to the location.
func (s Source) Label() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return strings.TrimSpace(s.Location)
}

func (s Source) Validate() error {
	if strings.TrimSpace(s.Location) == "" {
		return fmt.Errorf("%w: %q has no location", ErrInvalidSource, s.Name)
	}
	return nil
}

// Specifier is one requirement line: a package name plus optional constraint.
type Specifier struct {
	Raw  string
	Name string
}

// ParseSpecifier splits raw at the first version operator character.
func ParseSpecifier(raw string) Specifier {
	raw = strings.TrimSpace(raw)
	name := raw
	if idx := strings.IndexAny(raw, "<>=!~"); idx >= 0 {
		name = raw[:idx]
	}
	return Specifier{Raw: raw, Name: strings.TrimSpace(name)}
}

// SanitizedName is Name with everything outside [A-Za-z0-9_-] removed.
func (s Specifier) SanitizedName() string {
	return sanitizePattern.ReplaceAllString(s.Name, "")
}

// Args splits Raw into pip positional arguments.
func (s Specifier) Args() []string {
	return strings.Fields(s.Raw)
}

// Parse reads requirement lines, keeping order and duplicates.
// Blank lines, comments and pip option lines are skipped.
func Parse(r io.Reader) ([]Specifier, error) {
	var out []Specifier
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if before, _, found := strings.Cut(line, " #"); found {
			line = strings.TrimSpace(before)
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		out = append(out, ParseSpecifier(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest parse failed: %w", err)
	}
	return out, nil
}
