// Package registry holds the static district directory: the regional
// one-call centers that receive locate requests, their contact endpoints,
// and their supported submission channels.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/zulandar/onecall/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed districts.yaml
var embeddedDistricts []byte

// Registry is a read-only directory of districts keyed by id.
type Registry struct {
	byID  map[string]*models.District
	order []string
}

// Load builds a Registry from the embedded district directory. If overridePath
// is non-empty, that YAML file is loaded instead.
func Load(overridePath string) (*Registry, error) {
	data := embeddedDistricts
	if overridePath != "" {
		b, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("registry: read %s: %w", overridePath, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a Registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var doc struct {
		Districts []models.District `yaml:"districts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}
	if len(doc.Districts) == 0 {
		return nil, fmt.Errorf("registry: no districts defined")
	}

	r := &Registry{byID: make(map[string]*models.District, len(doc.Districts))}
	for i := range doc.Districts {
		d := &doc.Districts[i]
		if d.ID == "" {
			return nil, fmt.Errorf("registry: district %d has no id", i)
		}
		if len(d.Methods) == 0 {
			return nil, fmt.Errorf("registry: district %s has no methods", d.ID)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate district id %s", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// GetByID returns the district with the given id.
func (r *Registry) GetByID(id string) (*models.District, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("registry: district not found: %s", id)
	}
	return d, nil
}

// All returns every district in directory order.
func (r *Registry) All() []*models.District {
	out := make([]*models.District, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ByState returns the districts covering a US state or Canadian province,
// sorted by id.
func (r *Registry) ByState(state string) []*models.District {
	var out []*models.District
	for _, d := range r.byID {
		if d.State == state {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
