// Package astro is the upstream data gateway to the VedicAstroAPI service.
//
// The gateway is described by a YAML catalog (embedded, optionally replaced
// from disk) that lists:
//
//   - the fact categories cached per birth profile, with their upstream path
//     and the label used when the facts are rendered into a chat prompt;
//   - the category lists refreshed at each staleness tier;
//   - lookup tables (zodiac and nakshatra names to codes) and closed choice
//     sets used to validate proxy parameters;
//   - the proxy endpoints, each with its parameter list.
//
// Client performs the HTTP calls. Endpoint.Query validates and reshapes
// inbound parameters before any network call is made.
package astro

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Parameter kinds understood by Endpoint.Query.
const (
	KindString = "string"
	KindDate   = "date"
	KindTime   = "time"
	KindFloat  = "float"
	KindInt    = "int"
)

// Category is one cached fact kind.
type Category struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Label string `yaml:"label"`
}

// Refresh lists the categories re-fetched per staleness tier.
type Refresh struct {
	Minor []string `yaml:"minor"`
	Major []string `yaml:"major"`
}

// Param describes one query parameter of a proxy endpoint. At most one of
// Choice and Lookup is set; when neither is, Kind governs validation.
type Param struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
	Choice   string `yaml:"choice"`
	Lookup   string `yaml:"lookup"`
}

// Endpoint is one pass-through route. The inbound route and the upstream
// path are the same string.
type Endpoint struct {
	Path   string   `yaml:"path"`
	Use    []string `yaml:"use"`
	Params []Param  `yaml:"params"`
	Raw    bool     `yaml:"raw"`

	resolved []Param
}

// Catalog is the parsed upstream description.
type Catalog struct {
	Categories []Category                `yaml:"categories"`
	Refresh    Refresh                   `yaml:"refresh"`
	Lookups    map[string]map[string]int `yaml:"lookups"`
	Choices    map[string][]string       `yaml:"choices"`
	Groups     map[string][]Param        `yaml:"groups"`
	Endpoints  []Endpoint                `yaml:"endpoints"`

	byName map[string]Category
	byPath map[string]*Endpoint
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or returns the embedded one when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	if len(c.Categories) == 0 {
		return errors.New("catalog: no categories")
	}
	c.byName = make(map[string]Category, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.Name == "" || cat.Path == "" {
			return fmt.Errorf("catalog: category needs name and path: %+v", *cat)
		}
		if _, dup := c.byName[cat.Name]; dup {
			return fmt.Errorf("catalog: duplicate category %q", cat.Name)
		}
		if cat.Label == "" {
			cat.Label = cat.Name
		}
		c.byName[cat.Name] = *cat
	}
	for tier, list := range map[string][]string{"minor": c.Refresh.Minor, "major": c.Refresh.Major} {
		for _, name := range list {
			if _, ok := c.byName[name]; !ok {
				return fmt.Errorf("catalog: refresh.%s names unknown category %q", tier, name)
			}
		}
	}

	c.byPath = make(map[string]*Endpoint, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		ep.Path = strings.Trim(ep.Path, "/")
		if ep.Path == "" {
			return errors.New("catalog: endpoint without path")
		}
		if _, dup := c.byPath[ep.Path]; dup {
			return fmt.Errorf("catalog: duplicate endpoint %q", ep.Path)
		}
		var params []Param
		for _, g := range ep.Use {
			group, ok := c.Groups[g]
			if !ok {
				return fmt.Errorf("catalog: endpoint %q uses unknown group %q", ep.Path, g)
			}
			params = append(params, group...)
		}
		params = append(params, ep.Params...)
		seen := make(map[string]bool, len(params))
		for j := range params {
			p := &params[j]
			if p.Name == "" || seen[p.Name] {
				return fmt.Errorf("catalog: endpoint %q has an empty or repeated param %q", ep.Path, p.Name)
			}
			seen[p.Name] = true
			if p.Choice != "" {
				if _, ok := c.Choices[p.Choice]; !ok {
					return fmt.Errorf("catalog: param %s.%s uses unknown choice %q", ep.Path, p.Name, p.Choice)
				}
			}
			if p.Lookup != "" {
				if _, ok := c.Lookups[p.Lookup]; !ok {
					return fmt.Errorf("catalog: param %s.%s uses unknown lookup %q", ep.Path, p.Name, p.Lookup)
				}
			}
			if p.Kind == "" {
				p.Kind = KindString
			}
			switch p.Kind {
			case KindString, KindDate, KindTime, KindFloat, KindInt:
			default:
				return fmt.Errorf("catalog: param %s.%s has unknown kind %q", ep.Path, p.Name, p.Kind)
			}
		}
		ep.resolved = params
		c.byPath[ep.Path] = ep
	}
	return nil
}

// Category returns the category with the given name.
func (c *Catalog) Category(name string) (Category, bool) {
	cat, ok := c.byName[name]
	return cat, ok
}

// CategoryNames returns every category name in catalog (prompt) order.
func (c *Catalog) CategoryNames() []string {
	out := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = cat.Name
	}
	return out
}

// Endpoint returns the proxy endpoint registered under path.
func (c *Catalog) Endpoint(path string) (*Endpoint, bool) {
	ep, ok := c.byPath[strings.Trim(path, "/")]
	return ep, ok
}

// ResolvedParams returns the endpoint's parameters with groups expanded.
func (e *Endpoint) ResolvedParams() []Param { return e.resolved }
