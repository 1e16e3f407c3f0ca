package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
)

var (
	// ErrMissingClothType is returned when the clothing service response has no cloth_type.
	ErrMissingClothType = errors.New("could not determine clothing type")

	// ErrMissingColor is returned when the color service response has no usable color label.
	ErrMissingColor = errors.New("could not determine color")
)

// FabricAliases are the keys the fabric service has used for its label
// across versions, in the order they are tried.
var FabricAliases = []string{"predicted_class", "fabric_type", "class", "prediction"}

// fabricDistributionKeys are the keys that have carried the per-class
// fabric probabilities.
var fabricDistributionKeys = []string{"all_predictions", "probabilities"}

type decodeError struct {
	service Service
	err     error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.service.DisplayName(), e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

// ClothingPrediction is the clothing-category service output.
type ClothingPrediction struct {
	IsClothing     bool               `json:"is_clothing"`
	ClothType      string             `json:"cloth_type"`
	Confidence     float64            `json:"confidence"`
	AllPredictions map[string]float64 `json:"all_predictions,omitempty"`
}

// FabricPrediction is the fabric service output. FabricType is empty when
// none of FabricAliases carried a label; Raw keeps the body for display.
type FabricPrediction struct {
	FabricType     string             `json:"fabric_type"`
	Alias          string             `json:"alias,omitempty"`
	Confidence     float64            `json:"confidence"`
	WashingAdvice  string             `json:"washing_advice,omitempty"`
	AllPredictions map[string]float64 `json:"all_predictions,omitempty"`
	Raw            json.RawMessage    `json:"raw,omitempty"`
}

// ColorPrediction is the color-brightness service output. The image
// statistics are optional in the service response.
type ColorPrediction struct {
	Color        string   `json:"color"`
	Confidence   float64  `json:"confidence"`
	BrightnessL  *float64 `json:"brightness_L,omitempty"`
	Saturation   *float64 `json:"saturation,omitempty"`
	Colorfulness *float64 `json:"colorfulness,omitempty"`
}

// NormalizeConfidence returns a confidence as a fraction in [0,1]. Values
// above 1 are taken to be percentages.
func NormalizeConfidence(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	return clamp01(v)
}

// NormalizeDistribution rescales a label->probability map to fractions.
// The scale is decided for the whole map: if any entry exceeds 1 every
// entry is treated as a percentage.
func NormalizeDistribution(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	percent := false
	for _, v := range m {
		if v > 1 {
			percent = true
			break
		}
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if percent {
			v /= 100
		}
		out[k] = clamp01(v)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func parseClothing(body []byte) (*ClothingPrediction, error) {
	var raw struct {
		IsClothing     *bool              `json:"is_clothing"`
		ClothType      string             `json:"cloth_type"`
		Confidence     float64            `json:"confidence"`
		AllPredictions map[string]float64 `json:"all_predictions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &decodeError{service: ServiceClothing, err: err}
	}
	// An absent flag means the service only reports clothing.
	isClothing := raw.IsClothing == nil || *raw.IsClothing
	clothType := strings.TrimSpace(raw.ClothType)
	if clothType == "" {
		if isClothing {
			return nil, ErrMissingClothType
		}
		clothType = care.NotClothingLabel
	}

	pred := &ClothingPrediction{
		IsClothing:     isClothing,
		ClothType:      clothType,
		Confidence:     NormalizeConfidence(raw.Confidence),
		AllPredictions: NormalizeDistribution(raw.AllPredictions),
	}
	return pred, nil
}

func parseFabric(body []byte) (*FabricPrediction, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &decodeError{service: ServiceFabric, err: err}
	}

	pred := &FabricPrediction{Raw: json.RawMessage(body)}
	for _, alias := range FabricAliases {
		if s, ok := fields[alias].(string); ok && strings.TrimSpace(s) != "" {
			pred.FabricType = strings.TrimSpace(s)
			pred.Alias = alias
			break
		}
	}
	if v, ok := fields["confidence"].(float64); ok {
		pred.Confidence = NormalizeConfidence(v)
	}
	if s, ok := fields["washing_advice"].(string); ok {
		pred.WashingAdvice = s
	}
	for _, key := range fabricDistributionKeys {
		if dist := numberMap(fields[key]); len(dist) > 0 {
			pred.AllPredictions = NormalizeDistribution(dist)
			break
		}
	}
	return pred, nil
}

func parseColor(body []byte) (*ColorPrediction, error) {
	var raw ColorPrediction
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &decodeError{service: ServiceColor, err: err}
	}
	label := strings.ToLower(strings.TrimSpace(raw.Color))
	if label != "bright" && label != "dark" {
		return nil, fmt.Errorf("%w: got %q", ErrMissingColor, raw.Color)
	}
	raw.Color = label
	raw.Confidence = NormalizeConfidence(raw.Confidence)
	return &raw, nil
}

func numberMap(v any) map[string]float64 {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, val := range m {
		if f, ok := val.(float64); ok {
			out[k] = f
		}
	}
	return out
}
