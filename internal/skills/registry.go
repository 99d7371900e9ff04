package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bodyCacheSize bounds the number of skill instruction bodies kept in
// memory. Bodies can be large; the index entries are always resident.
const bodyCacheSize = 64

// Registry discovers SKILL.md files from multiple root directories.
// Roots are scanned in priority order: the first root containing a
// skill name wins, later duplicates are ignored. The registry is
// read-only after Load and safe for unsynchronized concurrent reads.
type Registry struct {
	roots []string

	mu     sync.RWMutex
	index  []Skill          // registration order
	byName map[string]Skill
	bodies *lru.Cache[string, string]

	// Version tracking for hot-reload. Bumped by the watcher on
	// SKILL.md changes; consumers compare to detect staleness.
	version atomic.Int64
}

// NewRegistry creates a registry over the given skill root directories
// (highest priority first). Empty roots are skipped.
func NewRegistry(roots ...string) (*Registry, error) {
	cache, err := lru.New[string, string](bodyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("skill body cache: %w", err)
	}
	var kept []string
	for _, r := range roots {
		if r != "" {
			kept = append(kept, r)
		}
	}
	return &Registry{roots: kept, byName: make(map[string]Skill), bodies: cache}, nil
}

// Load scans all roots and rebuilds the index. Individual malformed
// skill documents are logged and skipped, never fatal.
func (r *Registry) Load() error {
	var index []Skill
	byName := make(map[string]Skill)

	for _, root := range r.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(root, e.Name(), "SKILL.md")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			sk, _, err := ParseSkillMarkdown(string(data))
			if err != nil {
				slog.Warn("skipping malformed skill", "path", path, "error", err)
				continue
			}
			if _, dup := byName[sk.Name]; dup {
				continue
			}
			sk.Dir = filepath.Join(root, e.Name())
			sk.Order = len(index)
			index = append(index, sk)
			byName[sk.Name] = sk
		}
	}

	r.mu.Lock()
	r.index = index
	r.byName = byName
	r.bodies.Purge()
	r.mu.Unlock()

	slog.Debug("skill registry loaded", "skills", len(index), "roots", len(r.roots))
	return nil
}

// List returns all registered skills in registration order.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, len(r.index))
	copy(out, r.index)
	return out
}

// Get returns a skill descriptor by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.byName[name]
	return sk, ok
}

// Body returns the instruction body of a skill, caching reads.
// The {baseDir} placeholder is replaced with the skill's directory.
func (r *Registry) Body(name string) (string, error) {
	r.mu.RLock()
	sk, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown skill: %s", name)
	}

	if body, hit := r.bodies.Get(name); hit {
		return body, nil
	}

	data, err := os.ReadFile(filepath.Join(sk.Dir, "SKILL.md"))
	if err != nil {
		return "", fmt.Errorf("read skill %s: %w", name, err)
	}
	_, body, err := ParseSkillMarkdown(string(data))
	if err != nil {
		return "", fmt.Errorf("parse skill %s: %w", name, err)
	}
	body = strings.ReplaceAll(body, "{baseDir}", sk.Dir)
	r.bodies.Add(name, body)
	return body, nil
}

// Summary renders a one-line-per-skill index for prompt injection.
func (r *Registry) Summary() string {
	skillsList := r.List()
	if len(skillsList) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, sk := range skillsList {
		sb.WriteString("- " + sk.Name)
		if sk.Description != "" {
			sb.WriteString(": " + sk.Description)
		}
		if len(sk.Tags) > 0 {
			sb.WriteString(" [tags: " + strings.Join(sk.Tags, ", ") + "]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Dirs returns all roots, for the watcher to monitor.
func (r *Registry) Dirs() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Version returns the current registry snapshot version.
func (r *Registry) Version() int64 { return r.version.Load() }

// BumpVersion updates the version counter (called by the watcher).
func (r *Registry) BumpVersion() { r.version.Store(time.Now().UnixMilli()) }

