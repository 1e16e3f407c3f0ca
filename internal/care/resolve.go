package care

import (
	"errors"
	"strings"
)

// NotClothingLabel is the sentinel category the clothing service reports
// for images that do not show a garment.
const NotClothingLabel = "Not Clothing"

// ErrMissingFabricField is returned when no fabric type could be extracted
// from the fabric service response.
var ErrMissingFabricField = errors.New("could not determine fabric type")

// Kind selects which care sections are shown for an image.
type Kind string

const (
	KindNotClothing    Kind = "not_clothing"
	KindLeatherOnly    Kind = "leather_only"
	KindFabricAndColor Kind = "fabric_and_color"
)

// Input is what the resolver needs from the three classifiers.
type Input struct {
	IsClothing bool
	ClothType  string
	Fabric     string
	Color      string
}

// RenderPlan describes the care content to show for one image.
type RenderPlan struct {
	Kind      Kind   `json:"kind"`
	ClothType string `json:"cloth_type,omitempty"`

	// Fabric is the key whose record was used. When the classifier reported
	// an unknown fabric it is DefaultFabric and FabricFallback is set.
	Fabric         string  `json:"fabric,omitempty"`
	ReportedFabric string  `json:"reported_fabric,omitempty"`
	FabricFallback bool    `json:"fabric_fallback,omitempty"`
	Care           *Record `json:"care,omitempty"`

	Color           ColorClass `json:"color,omitempty"`
	ColorUnresolved bool       `json:"color_unresolved,omitempty"`
	Advisory        *Advisory  `json:"advisory,omitempty"`
}

// IsNotClothing reports whether the clothing classifier output marks the
// image as something other than a garment.
func IsNotClothing(isClothing bool, clothType string) bool {
	return !isClothing || strings.EqualFold(strings.TrimSpace(clothType), NotClothingLabel)
}

// Resolve applies the care decision table:
//
//	not clothing      -> KindNotClothing, nothing else populated
//	fabric missing    -> ErrMissingFabricField
//	leather           -> KindLeatherOnly, color is never consulted
//	any other fabric  -> KindFabricAndColor with the fabric record
//	                     (DefaultFabric when unknown) and the color advisory
func (g *Guide) Resolve(in Input) (RenderPlan, error) {
	if IsNotClothing(in.IsClothing, in.ClothType) {
		return RenderPlan{Kind: KindNotClothing}, nil
	}

	fabric := normalizeFabric(in.Fabric)
	if fabric == "" {
		return RenderPlan{}, ErrMissingFabricField
	}

	plan := RenderPlan{
		ClothType:      in.ClothType,
		Fabric:         fabric,
		ReportedFabric: in.Fabric,
	}

	if fabric == "leather" {
		rec := g.Fabrics["leather"]
		plan.Kind = KindLeatherOnly
		plan.Care = &rec
		return plan, nil
	}

	rec, ok := g.Fabrics[fabric]
	if !ok {
		rec = g.Fabrics[g.DefaultFabric]
		plan.Fabric = g.DefaultFabric
		plan.FabricFallback = true
	}
	plan.Kind = KindFabricAndColor
	plan.Care = &rec

	color, ok := ParseColor(in.Color)
	if !ok {
		plan.ColorUnresolved = true
		return plan, nil
	}
	advisory, ok := g.Advisory(color)
	if !ok {
		plan.ColorUnresolved = true
		return plan, nil
	}
	plan.Color = color
	plan.Advisory = &advisory
	return plan, nil
}
