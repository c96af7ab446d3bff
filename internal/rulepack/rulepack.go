// Package rulepack resolves named rule profiles into the rule-tag sets passed
// to the scan capability. Profiles ship as built-ins and can be extended or
// overridden by YAML files in a configured directory.
package rulepack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is one named rule-tag selection.
type Profile struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags" json:"tags"`
}

// Registry holds profiles keyed by id.
type Registry struct {
	profiles map[string]Profile
}

// DefaultProfile is used when a scan request names neither profile nor tags.
const DefaultProfile = "wcag2aa"

func builtins() []Profile {
	return []Profile{
		{ID: "wcag2a", Description: "WCAG 2.0 Level A", Tags: []string{"wcag2a", "wcag21a"}},
		{ID: "wcag2aa", Description: "WCAG 2.0/2.1 Level AA", Tags: []string{"wcag2a", "wcag2aa", "wcag21a", "wcag21aa"}},
		{ID: "wcag22aa", Description: "WCAG 2.2 Level AA", Tags: []string{"wcag2a", "wcag2aa", "wcag21aa", "wcag22aa"}},
		{ID: "best-practice", Description: "Level AA plus vendor best practices", Tags: []string{"wcag2a", "wcag2aa", "wcag21aa", "best-practice"}},
	}
}

// Load builds a registry from the built-in profiles plus any *.yaml files in
// dir. Files with the same id override built-ins. An empty dir is fine.
func Load(dir string) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range builtins() {
		r.profiles[p.ID] = p
	}
	if dir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rule profile dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".yaml") {
			continue
		}
		p, err := parseProfile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("rule profile %s: %w", ent.Name(), err)
		}
		r.profiles[p.ID] = p
	}
	return r, nil
}

func parseProfile(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Profile{}, err
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("missing id")
	}
	if len(p.Tags) == 0 {
		return Profile{}, fmt.Errorf("profile %s has no tags", p.ID)
	}
	return p, nil
}

// Resolve turns a request's profile/tags pair into the effective tag set.
// Explicit tags win; otherwise the named profile; otherwise the default.
func (r *Registry) Resolve(profile string, tags []string) ([]string, error) {
	if len(tags) > 0 {
		return tags, nil
	}
	if profile == "" {
		profile = DefaultProfile
	}
	p, ok := r.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown rule profile %q", profile)
	}
	out := make([]string, len(p.Tags))
	copy(out, p.Tags)
	return out, nil
}

// Profiles lists known profiles sorted by id.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
