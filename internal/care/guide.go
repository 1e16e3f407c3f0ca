// Package care holds the static fabric-care knowledge base and the resolver
// that merges fabric care with color advice for a classified garment.
package care

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultFabric is the fabric whose record is used when the classifier
// reports a fabric the guide does not know.
const DefaultFabric = "cotton"

// SupportedFabrics lists the fabric classes produced by the fabric service.
var SupportedFabrics = []string{"cotton", "denim", "leather", "linen", "polyester", "silk"}

//go:embed careguide.yaml
var embeddedGuide []byte

// ColorClass is the binary brightness class produced by the color service.
type ColorClass string

const (
	Bright ColorClass = "bright"
	Dark   ColorClass = "dark"
)

// ParseColor maps a color service label onto a ColorClass.
func ParseColor(s string) (ColorClass, bool) {
	switch ColorClass(strings.ToLower(strings.TrimSpace(s))) {
	case Bright:
		return Bright, true
	case Dark:
		return Dark, true
	default:
		return "", false
	}
}

// Record is the care entry for one fabric.
type Record struct {
	Title        string   `yaml:"title" json:"title"`
	Icon         string   `yaml:"icon" json:"icon"`
	Instructions []string `yaml:"instructions" json:"instructions"`
}

// Advisory is the washing advice block for one color class.
type Advisory struct {
	Title        string   `yaml:"title" json:"title"`
	Icon         string   `yaml:"icon" json:"icon"`
	Instructions []string `yaml:"instructions" json:"instructions"`
}

// Text renders the advisory as the markdown block shown under the color result.
func (a Advisory) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s**\n", a.Icon, a.Title)
	for _, line := range a.Instructions {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// CategoryGroup is a sidebar group of clothing categories the clothing
// service is able to detect.
type CategoryGroup struct {
	Group string   `yaml:"group" json:"group"`
	Icon  string   `yaml:"icon" json:"icon"`
	Items []string `yaml:"items" json:"items"`
}

// Guide is the care table. Use Load, LoadFile or Default to obtain one.
// Resolve only reads from it, so a Guide is safe for concurrent use as long
// as nobody modifies the maps. The Default guide is shared and must not be
// modified.
type Guide struct {
	DefaultFabric      string                  `yaml:"default_fabric"`
	Fabrics            map[string]Record       `yaml:"fabrics"`
	Advisories         map[ColorClass]Advisory `yaml:"advisories"`
	ClothingCategories []CategoryGroup         `yaml:"clothing_categories"`
}

// Load parses and validates a YAML care guide.
func Load(data []byte) (*Guide, error) {
	var g Guide
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse care guide: %w", err)
	}
	if g.DefaultFabric == "" {
		g.DefaultFabric = DefaultFabric
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// LoadFile reads a care guide from disk.
func LoadFile(path string) (*Guide, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read care guide: %w", err)
	}
	return Load(data)
}

var defaultGuide = sync.OnceValues(func() (*Guide, error) {
	return Load(embeddedGuide)
})

// Default returns the guide compiled into the binary. The same *Guide is
// returned on every call. It panics if the embedded document is invalid,
// which the package tests rule out.
func Default() *Guide {
	g, err := defaultGuide()
	if err != nil {
		panic(err)
	}
	return g
}

// Validate checks the invariants the resolver depends on.
func (g *Guide) Validate() error {
	for key := range g.Fabrics {
		if key != strings.ToLower(key) {
			return fmt.Errorf("care guide fabric %q must be lowercase", key)
		}
		if !slices.Contains(SupportedFabrics, key) {
			return fmt.Errorf("care guide fabric %q is not a supported fabric", key)
		}
	}
	for _, key := range SupportedFabrics {
		rec, ok := g.Fabrics[key]
		if !ok {
			return fmt.Errorf("care guide is missing fabric %q", key)
		}
		if rec.Title == "" || len(rec.Instructions) == 0 {
			return fmt.Errorf("care guide fabric %q needs a title and instructions", key)
		}
	}
	if _, ok := g.Fabrics[g.DefaultFabric]; !ok {
		return fmt.Errorf("care guide default fabric %q has no record", g.DefaultFabric)
	}
	for _, c := range []ColorClass{Bright, Dark} {
		if a, ok := g.Advisories[c]; !ok || len(a.Instructions) == 0 {
			return fmt.Errorf("care guide is missing the %s advisory", c)
		}
	}
	return nil
}

// Lookup returns the record for a fabric name, ignoring case and
// surrounding whitespace. The boolean is false when the name is unknown.
func (g *Guide) Lookup(fabric string) (Record, bool) {
	rec, ok := g.Fabrics[normalizeFabric(fabric)]
	return rec, ok
}

// Advisory returns the advice block for a color class.
func (g *Guide) Advisory(c ColorClass) (Advisory, bool) {
	a, ok := g.Advisories[c]
	return a, ok
}

// FabricNames returns the fabric keys in alphabetical order.
func (g *Guide) FabricNames() []string {
	names := make([]string, 0, len(g.Fabrics))
	for name := range g.Fabrics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalizeFabric(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
