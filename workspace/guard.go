// Package workspace sandboxes text file access to a single root directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrDenied   = errors.New("outside the workspace")
	ErrNotFound = errors.New("file not found")
)

// Guard resolves every path against Root and refuses anything that escapes it.
type Guard struct {
	root string
}

// New creates root if needed and pins its absolute, symlink-free form.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	return &Guard{root: resolved}, nil
}

func (g *Guard) Root() string {
	return g.root
}

// Resolve returns the absolute path for p, or ErrDenied when it would land
// outside the root. Absolute inputs are checked as given.
func (g *Guard) Resolve(p string) (string, error) {
	var target string
	if filepath.IsAbs(p) {
		target = filepath.Clean(p)
	} else {
		target = filepath.Join(g.root, p)
	}

	target, err := resolveExisting(target)
	if err != nil {
		return "", err
	}

	if !within(g.root, target) {
		return "", fmt.Errorf("%s: %w", p, ErrDenied)
	}
	return target, nil
}

// maxLinkHops bounds dangling-link chains, matching the usual ELOOP limit.
const maxLinkHops = 40

// resolveExisting follows symlinks in the longest existing prefix of p. A
// dangling symlink is followed to its target too, so a write through it is
// checked against where it would really land.
func resolveExisting(p string) (string, error) {
	var rest []string
	cur := p
	hops := 0
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		if fi, lerr := os.Lstat(cur); lerr == nil && fi.Mode()&fs.ModeSymlink != 0 {
			hops++
			if hops > maxLinkHops {
				return "", fmt.Errorf("%s: too many levels of symbolic links", p)
			}
			link, err := os.Readlink(cur)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(link) {
				link = filepath.Join(filepath.Dir(cur), link)
			}
			cur = filepath.Clean(link)
			continue
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(append([]string{cur}, rest...)...), nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Read returns the file content, ErrDenied or ErrNotFound.
func (g *Guard) Read(p string) (string, error) {
	target, err := g.Resolve(p)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write creates or truncates the file, creating parent directories inside the root.
func (g *Guard) Write(p, content string) error {
	target, err := g.Resolve(p)
	if err != nil {
		return err
	}
	if target == g.root {
		return fmt.Errorf("%s: is the workspace root", p)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(content), 0600)
}

// ReadText is Read rendered for a model: failures become messages, never errors.
func (g *Guard) ReadText(p string) string {
	content, err := g.Read(p)
	switch {
	case errors.Is(err, ErrDenied):
		return fmt.Sprintf("Access denied: %s is outside the workspace.", p)
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Error: File %s not found.", p)
	case err != nil:
		return fmt.Sprintf("Error reading file: %v", err)
	}
	return content
}

// WriteText is Write rendered for a model.
func (g *Guard) WriteText(p, content string) string {
	err := g.Write(p, content)
	switch {
	case errors.Is(err, ErrDenied):
		return fmt.Sprintf("Access denied: %s is outside the workspace.", p)
	case err != nil:
		return fmt.Sprintf("Error writing file: %v", err)
	}
	return "File written successfully."
}
