package config

import (
	"fmt"
	"os"
	"strings"

	"dailyintel/internal/core"

	"gopkg.in/yaml.v3"
)

// SourcesFile is the parsed form of sources.yaml:
//
//	groups:
//	  data_platform:
//	    - name: Databricks Blog
//	      kind: rss
//	      url: https://www.databricks.com/feed
//	      tags: [data_platform, spark]
//	      priority: 1
type SourcesFile struct {
	Groups  []string      // group keys in file order
	Sources []core.Source // every source, enabled or not, in file order
}

type rawSource struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Type     string            `yaml:"type"` // accepted alias for kind
	URL      string            `yaml:"url"`
	Tags     []string          `yaml:"tags"`
	Priority int               `yaml:"priority"`
	Enabled  *bool             `yaml:"enabled"`
	Options  map[string]string `yaml:"options"`
}

// LoadSources reads and parses a sources file.
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources parses sources YAML. Group order is preserved, which is why
// the groups mapping is walked as a yaml.Node instead of decoded into a map.
func ParseSources(data []byte) (*SourcesFile, error) {
	var doc struct {
		Groups yaml.Node `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	if doc.Groups.Kind == 0 {
		return nil, fmt.Errorf("sources file has no groups")
	}
	if doc.Groups.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("groups must be a mapping of group name to sources (line %d)", doc.Groups.Line)
	}

	sf := &SourcesFile{}
	for i := 0; i+1 < len(doc.Groups.Content); i += 2 {
		group := strings.TrimSpace(doc.Groups.Content[i].Value)
		var raws []rawSource
		if err := doc.Groups.Content[i+1].Decode(&raws); err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}

		sf.Groups = append(sf.Groups, group)
		for _, r := range raws {
			sf.Sources = append(sf.Sources, r.toSource(group))
		}
	}
	return sf, nil
}

func (r rawSource) toSource(group string) core.Source {
	kind := r.Kind
	if kind == "" {
		kind = r.Type
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	tags := make([]string, 0, len(r.Tags)+1)
	hasGroup := false
	for _, t := range r.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == group {
			hasGroup = true
		}
		tags = append(tags, t)
	}
	// The declaring group is the last-resort tag so the article lands in it
	// unless an earlier tag names another registered group.
	if !hasGroup && group != "" {
		tags = append(tags, group)
	}

	return core.Source{
		Name:     strings.TrimSpace(r.Name),
		Kind:     core.SourceKind(strings.ToLower(strings.TrimSpace(kind))),
		Endpoint: strings.TrimSpace(r.URL),
		Tags:     tags,
		Priority: r.Priority,
		Enabled:  enabled,
		Options:  r.Options,
	}
}

// EnabledSources returns the sources that should be fetched, in file order.
func (c *Config) EnabledSources() []core.Source {
	out := make([]core.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
