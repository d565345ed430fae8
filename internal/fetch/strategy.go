package fetch

import (
	"strings"
)

// Strategy is one set of pip download target flags. An empty Args slice means
// the current environment.
type Strategy struct {
	Args []string
}

func (s Strategy) String() string {
	if len(s.Args) == 0 {
		return "current-env"
	}
	return strings.Join(s.Args, " ")
}

// Matrix lists the download targets tried for each specifier.
type Matrix struct {
	Platforms       []string
	PythonVersions  []string
	Implementations []string
	OnlyBinary      bool
}

func DefaultMatrix() Matrix {
	return Matrix{
		Platforms:       []string{"any", "win_amd64"},
		PythonVersions:  []string{"3.13", "3.12", "3.11", "3", "3.14", "3.15", "3.16"},
		Implementations: []string{"cp", "py"},
		OnlyBinary:      true,
	}
}

// Strategies expands the matrix in platform, version, abi, implementation
// order and appends the current-environment strategy last.
func (m Matrix) Strategies() []Strategy {
	var out []Strategy
	for _, platform := range m.Platforms {
		for _, version := range m.PythonVersions {
			for _, abi := range []string{"none", SpecificABI(version)} {
				for _, impl := range m.Implementations {
					if impl == "py" && (strings.HasPrefix(abi, "cp") || strings.HasPrefix(abi, "abi")) {
						continue
					}
					args := []string{
						"--platform", platform,
						"--python-version", version,
						"--abi", abi,
						"--implementation", impl,
					}
					if m.OnlyBinary {
						args = append(args, "--only-binary=:all:")
					}
					out = append(out, Strategy{Args: args})
				}
			}
		}
	}
	return append(out, Strategy{})
}

// SpecificABI maps a python version to its CPython ABI tag: 3.12 -> cp312,
// 3 -> abi3, anything else -> cp<version>.
func SpecificABI(version string) string {
	switch {
	case strings.Contains(version, "."):
		return "cp" + strings.ReplaceAll(version, ".", "")
	case len(version) == 1:
		return "abi" + version
	default:
		return "cp" + version
	}
}
