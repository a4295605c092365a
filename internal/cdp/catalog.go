package cdp

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
)

//go:embed protocol.yaml
var defaultCatalogYAML []byte

// Result shapes a method can declare.
const (
	ReturnsNone   = "none"
	ReturnsObject = "object"
	ReturnsField  = "field"
)

// MethodSpec describes one callable method.
type MethodSpec struct {
	Name          string   `yaml:"name"`
	Params        []string `yaml:"params"`
	FireAndForget bool     `yaml:"fireAndForget"`
	Returns       string   `yaml:"returns"`
	Field         string   `yaml:"field"`
}

// DomainSpec describes a capability group.
type DomainSpec struct {
	Name    string       `yaml:"name"`
	Methods []MethodSpec `yaml:"methods"`
	Events  []string     `yaml:"events"`

	methods map[string]*MethodSpec
	events  map[string]struct{}
}

// Method looks up a callable method.
func (d *DomainSpec) Method(name string) (*MethodSpec, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// IsEvent reports whether name is a declared event.
func (d *DomainSpec) IsEvent(name string) bool {
	_, ok := d.events[name]
	return ok
}

func (d *DomainSpec) index() error {
	if d.Name == "" {
		return fmt.Errorf("domain without a name")
	}

	d.methods = make(map[string]*MethodSpec, len(d.Methods))
	d.events = make(map[string]struct{}, len(d.Events))

	for _, ev := range d.Events {
		if _, dup := d.events[ev]; dup {
			return fmt.Errorf("%s: event %s declared twice", d.Name, ev)
		}
		d.events[ev] = struct{}{}
	}

	for i := range d.Methods {
		m := &d.Methods[i]
		if m.Name == "" {
			return fmt.Errorf("%s: method without a name", d.Name)
		}
		if _, dup := d.methods[m.Name]; dup {
			return fmt.Errorf("%s: method %s declared twice", d.Name, m.Name)
		}
		if _, clash := d.events[m.Name]; clash {
			return fmt.Errorf("%s: %s declared as both method and event", d.Name, m.Name)
		}

		switch m.Returns {
		case "":
			m.Returns = ReturnsNone
		case ReturnsNone, ReturnsObject:
		case ReturnsField:
			if m.Field == "" {
				return fmt.Errorf("%s.%s: returns field without a field name", d.Name, m.Name)
			}
		default:
			return fmt.Errorf("%s.%s: unknown result shape %q", d.Name, m.Name, m.Returns)
		}
		if m.FireAndForget && m.Returns != ReturnsNone {
			return fmt.Errorf("%s.%s: fire-and-forget methods cannot return a value", d.Name, m.Name)
		}

		d.methods[m.Name] = m
	}
	return nil
}

// Catalog is the set of known capability groups. Each group is registered
// exactly once.
type Catalog struct {
	mu      sync.RWMutex
	domains map[string]*DomainSpec
	order   []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{domains: make(map[string]*DomainSpec)}
}

// Register adds a domain. Registering a name twice fails with
// ErrDuplicateDomain.
func (c *Catalog) Register(spec DomainSpec) error {
	spec.Methods = append([]MethodSpec(nil), spec.Methods...)
	spec.Events = append([]string(nil), spec.Events...)
	if err := spec.index(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.domains[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDomain, spec.Name)
	}
	c.domains[spec.Name] = &spec
	c.order = append(c.order, spec.Name)
	return nil
}

// Domain looks up a registered domain.
func (c *Catalog) Domain(name string) (*DomainSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domains[name]
	return d, ok
}

// Domains returns the registered names in registration order.
func (c *Catalog) Domains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

type catalogFile struct {
	Domains []DomainSpec `yaml:"domains"`
}

// ParseCatalog builds a catalog from YAML declarations.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := NewCatalog()
	for _, d := range file.Domains {
		if err := c.Register(d); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	}
	return c, nil
}

// MustLoadCatalog is ParseCatalog for startup code: a broken declaration set
// is a configuration error, so it panics.
func MustLoadCatalog(data []byte) *Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns the built-in declarations.
func DefaultCatalog() *Catalog {
	return MustLoadCatalog(defaultCatalogYAML)
}
