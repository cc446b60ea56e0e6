// Package routing holds the event routing table: which systems receive an
// event type and how the payload is reshaped for each of them. The table
// is data, loaded from YAML.
package routing

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_routes.yaml
var defaultRoutes []byte

// Transform reshapes a payload for one target system.
type Transform struct {
	Only   []string          `yaml:"only" json:"only,omitempty"`
	Drop   []string          `yaml:"drop" json:"drop,omitempty"`
	Rename map[string]string `yaml:"rename" json:"rename,omitempty"`
	Static map[string]any    `yaml:"static" json:"static,omitempty"`
}

func (t *Transform) empty() bool {
	return t == nil || (len(t.Only) == 0 && len(t.Drop) == 0 && len(t.Rename) == 0 && len(t.Static) == 0)
}

type Target struct {
	System    string     `yaml:"system" json:"system"`
	Transform *Transform `yaml:"transform" json:"transform,omitempty"`
}

type Route struct {
	EventType string   `yaml:"event_type" json:"event_type"`
	Targets   []Target `yaml:"targets" json:"targets"`
}

type file struct {
	Routes []Route `yaml:"routes"`
}

// Table resolves event types to targets. Exact event types win over
// "prefix.*" patterns. It is immutable once built.
type Table struct {
	exact    map[string]Route
	prefixes map[string]Route
}

// Load reads the routing table from path, or the embedded default when
// path is empty.
func Load(path string) (*Table, error) {
	data := defaultRoutes
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read routes file: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	return NewTable(f.Routes)
}

func NewTable(routes []Route) (*Table, error) {
	t := &Table{
		exact:    make(map[string]Route),
		prefixes: make(map[string]Route),
	}

	for i, r := range routes {
		r.EventType = strings.TrimSpace(r.EventType)
		if r.EventType == "" {
			return nil, fmt.Errorf("route %d: event_type is required", i)
		}

		seen := make(map[string]bool, len(r.Targets))
		for _, target := range r.Targets {
			if target.System == "" {
				return nil, fmt.Errorf("route %s: target system is required", r.EventType)
			}
			if seen[target.System] {
				return nil, fmt.Errorf("route %s: duplicate target %s", r.EventType, target.System)
			}
			seen[target.System] = true
		}

		if prefix, ok := strings.CutSuffix(r.EventType, ".*"); ok {
			if _, dup := t.prefixes[prefix]; dup {
				return nil, fmt.Errorf("duplicate route %s", r.EventType)
			}
			t.prefixes[prefix] = r
			continue
		}
		if _, dup := t.exact[r.EventType]; dup {
			return nil, fmt.Errorf("duplicate route %s", r.EventType)
		}
		t.exact[r.EventType] = r
	}

	return t, nil
}

func (t *Table) lookup(eventType string) (Route, bool) {
	if r, ok := t.exact[eventType]; ok {
		return r, true
	}
	// Longest matching prefix.
	for p := eventType; ; {
		idx := strings.LastIndex(p, ".")
		if idx < 0 {
			return Route{}, false
		}
		p = p[:idx]
		if r, ok := t.prefixes[p]; ok {
			return r, true
		}
	}
}

// Targets returns the systems an event type fans out to. Unknown types
// yield an empty list.
func (t *Table) Targets(eventType string) []string {
	r, ok := t.lookup(eventType)
	if !ok {
		return nil
	}
	systems := make([]string, 0, len(r.Targets))
	for _, target := range r.Targets {
		systems = append(systems, target.System)
	}
	return systems
}

// Transform returns the payload to post to system for eventType. The
// input map is never modified.
func (t *Table) Transform(eventType, system string, payload map[string]any) map[string]any {
	out := maps.Clone(payload)
	if out == nil {
		out = make(map[string]any)
	}

	r, ok := t.lookup(eventType)
	if !ok {
		return out
	}
	idx := slices.IndexFunc(r.Targets, func(tg Target) bool { return tg.System == system })
	if idx < 0 || r.Targets[idx].Transform.empty() {
		return out
	}
	tr := r.Targets[idx].Transform

	if len(tr.Only) > 0 {
		kept := make(map[string]any, len(tr.Only))
		for _, k := range tr.Only {
			if v, ok := out[k]; ok {
				kept[k] = v
			}
		}
		out = kept
	}
	for _, k := range tr.Drop {
		delete(out, k)
	}
	for from, to := range tr.Rename {
		if v, ok := out[from]; ok {
			delete(out, from)
			out[to] = v
		}
	}
	for k, v := range tr.Static {
		out[k] = v
	}
	return out
}

// Routes lists the table sorted by event type.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.exact)+len(t.prefixes))
	for _, r := range t.exact {
		out = append(out, r)
	}
	for _, r := range t.prefixes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out
}
