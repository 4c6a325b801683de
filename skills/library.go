// Package skills materializes an uploaded skill bundle and serves its
// SKILL.md manifests and resources.
package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/workspace"
)

var ErrSkillNotFound = errors.New("skill not found")

// Skill is one discovered skill directory.
type Skill struct {
	Manifest
	Dir       string
	Body      string
	Resources []string // slash paths relative to Dir, excluding SKILL.md
	guard     *workspace.Guard
}

// Library holds the skills found under one directory. The directory is owned
// by the Library when it came from Materialize and is removed by Close.
type Library struct {
	dir    string
	root   string // temp directory to remove on Close; empty when not owned
	skills map[string]*Skill
	names  []string
	log    *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Materialize writes archive into a fresh temp directory, extracts it and
// discovers its skills. On any error the directory is already removed.
func Materialize(archive []byte, log *logging.Logger) (*Library, error) {
	if log == nil {
		log = logging.Discard()
	}

	dir, err := os.MkdirTemp("", "loki-skills-")
	if err != nil {
		return nil, fmt.Errorf("failed to create skill directory: %w", err)
	}

	lib, err := materializeInto(dir, archive, log)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	lib.root = dir
	return lib, nil
}

func materializeInto(dir string, archive []byte, log *logging.Logger) (*Library, error) {
	zipPath := filepath.Join(dir, "skills.zip")
	if err := os.WriteFile(zipPath, archive, 0600); err != nil {
		return nil, fmt.Errorf("failed to write skill archive: %w", err)
	}
	extractDir := filepath.Join(dir, "skills")
	if err := Extract(archive, extractDir); err != nil {
		return nil, err
	}
	return Discover(extractDir, log)
}

// Discover scans dir for SKILL.md manifests. Unparseable manifests are logged
// and skipped; a later duplicate name is skipped too.
func Discover(dir string, log *logging.Logger) (*Library, error) {
	if log == nil {
		log = logging.Discard()
	}
	lib := &Library{dir: dir, skills: make(map[string]*Skill), log: log.Named("skills")}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ManifestName {
			return nil
		}

		skill, err := loadSkill(filepath.Dir(p))
		if err != nil {
			lib.log.Warn("skipping skill", "path", p, "error", err)
			return nil
		}
		if _, dup := lib.skills[skill.Name]; dup {
			lib.log.Warn("duplicate skill name", "name", skill.Name, "path", p)
			return nil
		}
		lib.skills[skill.Name] = skill
		lib.names = append(lib.names, skill.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan skills: %w", err)
	}

	sort.Strings(lib.names)
	lib.log.Info("skills loaded", "count", len(lib.names))
	return lib, nil
}

func loadSkill(dir string) (*Skill, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	m, body, err := ParseManifest(string(content))
	if err != nil {
		return nil, err
	}

	guard, err := workspace.New(dir)
	if err != nil {
		return nil, err
	}

	skill := &Skill{Manifest: m, Dir: dir, Body: body, guard: guard}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel != ManifestName {
			skill.Resources = append(skill.Resources, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(skill.Resources)
	return skill, nil
}

func (l *Library) Dir() string {
	return l.dir
}

// Names returns skill names in sorted order.
func (l *Library) Names() []string {
	return append([]string(nil), l.names...)
}

func (l *Library) Get(name string) (*Skill, error) {
	s, ok := l.skills[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrSkillNotFound)
	}
	return s, nil
}

// List renders name -> description as a JSON object.
func (l *Library) List() string {
	out := make(map[string]string, len(l.skills))
	for name, s := range l.skills {
		out[name] = s.Description
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// Load renders a skill's instructions and resource index.
func (l *Library) Load(name string) (string, error) {
	s, err := l.Get(name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Skill: %s\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n", s.Description)
	}
	if len(s.Resources) > 0 {
		fmt.Fprintf(&b, "\nResources: %s\n", strings.Join(s.Resources, ", "))
	}
	b.WriteString("\n")
	b.WriteString(s.Body)
	return b.String(), nil
}

// ReadResource reads a file inside the skill's directory.
func (l *Library) ReadResource(name, resource string) (string, error) {
	s, err := l.Get(name)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(resource) {
		return "", fmt.Errorf("%s: %w", resource, workspace.ErrDenied)
	}
	return s.guard.Read(resource)
}

// Root is the temp directory created by Materialize, or "" for Discover.
func (l *Library) Root() string {
	return l.root
}

// Close removes the materialized directory. Safe to call more than once.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		if l.root != "" {
			l.closeErr = os.RemoveAll(l.root)
		}
	})
	return l.closeErr
}
