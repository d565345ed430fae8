package artifacts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var ErrInvalidDir = errors.New("artifacts: invalid directory")

var archiveSuffixes = []string{".whl", ".tar.gz", ".zip", ".tar.bz2"}

// Archive is one installable package file inside the artifact directory.
type Archive struct {
	// RelPath is slash-separated and relative to the directory root.
	RelPath string
	Path    string
	Size    int64
	Name    string
	Version string
}

// Dir is the local cache of downloaded archives.
type Dir struct {
	root string
}

func NewDir(root string) (Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Dir{}, fmt.Errorf("%w: empty path", ErrInvalidDir)
	}
	return Dir{root: filepath.Clean(root)}, nil
}

func (d Dir) Root() string {
	return d.root
}

// Ensure creates the directory if it does not exist.
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDir, d.root, err)
	}
	return nil
}

// Sub returns the named subdirectory, creating it.
func (d Dir) Sub(name string) (string, error) {
	p := filepath.Join(d.root, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDir, p, err)
	}
	return p, nil
}

// Archives lists archive files recursively, sorted by RelPath, with one
// entry per file name. A missing directory yields an empty list.
func (d Dir) Archives() ([]Archive, error) {
	var out []Archive
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == d.root {
				return fs.SkipAll
			}
			return walkErr
		}
		if entry.IsDir() || !IsArchive(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		a := Archive{
			RelPath: filepath.ToSlash(rel),
			Path:    path,
			Size:    info.Size(),
		}
		a.Name, a.Version = ParseFilename(entry.Name())
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RelPath < out[j].RelPath
	})
	return dedupe(out), nil
}

// dedupe keeps one archive per file name. A copy in a subdirectory wins over
// a root-level one, otherwise the first in RelPath order wins.
func dedupe(sorted []Archive) []Archive {
	chosen := make(map[string]string, len(sorted))
	for _, a := range sorted {
		key := strings.ToLower(path.Base(a.RelPath))
		prev, ok := chosen[key]
		if !ok || (!strings.Contains(prev, "/") && strings.Contains(a.RelPath, "/")) {
			chosen[key] = a.RelPath
		}
	}
	out := sorted[:0]
	for _, a := range sorted {
		if chosen[strings.ToLower(path.Base(a.RelPath))] == a.RelPath {
			out = append(out, a)
		}
	}
	return out
}

// Subdirs lists the root and every directory below it, sorted.
func (d Dir) Subdirs() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && path == d.root {
				return fs.SkipAll
			}
			return walkErr
		}
		if entry.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Snapshot maps RelPath to size for before/after comparisons.
func (d Dir) Snapshot() (map[string]int64, error) {
	archives, err := d.Archives()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(archives))
	for _, a := range archives {
		out[a.RelPath] = a.Size
	}
	return out, nil
}

// TotalSize sums archive sizes.
func TotalSize(archives []Archive) uint64 {
	var total uint64
	for _, a := range archives {
		if a.Size > 0 {
			total += uint64(a.Size)
		}
	}
	return total
}

// CopyFiles copies the regular files directly inside src into d's root.
func (d Dir) CopyFiles(src string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return copied, err
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(d.root, entry.Name()), info.Mode().Perm()); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// IsArchive reports whether name has an installable archive suffix.
func IsArchive(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// ParseFilename extracts distribution name and version.
// Wheels follow {name}-{version}(-{build})?-{py}-{abi}-{platform}.whl;
// sdists are {name}-{version}.{ext}.
func ParseFilename(name string) (string, string) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".whl") {
		parts := strings.Split(name[:len(name)-len(".whl")], "-")
		if len(parts) < 5 {
			return "", ""
		}
		return parts[0], parts[1]
	}
	for _, suffix := range archiveSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		stem := name[:len(name)-len(suffix)]
		idx := strings.LastIndex(stem, "-")
		if idx <= 0 || idx == len(stem)-1 {
			return "", ""
		}
		return stem[:idx], stem[idx+1:]
	}
	return "", ""
}

func copyFile(src string, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
