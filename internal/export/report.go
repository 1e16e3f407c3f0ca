package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Summary aggregates exported records.
type Summary struct {
	Total           int            `json:"total"`
	Outcomes        map[string]int `json:"outcomes"`
	ClothTypes      map[string]int `json:"cloth_types"`
	Fabrics         map[string]int `json:"fabrics"`
	Colors          map[string]int `json:"colors"`
	FabricFallbacks int            `json:"fabric_fallbacks"`

	// Mean confidences over the rows where the service answered.
	MeanClothingConfidence float64 `json:"mean_clothing_confidence"`
	MeanFabricConfidence   float64 `json:"mean_fabric_confidence"`
	MeanColorConfidence    float64 `json:"mean_color_confidence"`

	Records []Record `json:"records,omitempty"`
}

// Summarize counts outcomes and labels across records.
func Summarize(records []Record) *Summary {
	s := &Summary{
		Total:      len(records),
		Outcomes:   map[string]int{},
		ClothTypes: map[string]int{},
		Fabrics:    map[string]int{},
		Colors:     map[string]int{},
		Records:    records,
	}

	var clothing, fabric, color mean
	for _, r := range records {
		s.Outcomes[r.Outcome]++
		if r.ClothType != "" {
			s.ClothTypes[r.ClothType]++
			clothing.add(r.ClothingConfidence)
		}
		if r.Fabric != "" {
			s.Fabrics[r.Fabric]++
		}
		if r.ReportedFabric != "" {
			fabric.add(r.FabricConfidence)
		}
		if r.Color != "" {
			s.Colors[r.Color]++
			color.add(r.ColorConfidence)
		}
		if r.FabricFallback {
			s.FabricFallbacks++
		}
	}
	s.MeanClothingConfidence = clothing.value()
	s.MeanFabricConfidence = fabric.value()
	s.MeanColorConfidence = color.value()
	return s
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// WriteReport renders a summary as text, json or csv.
func WriteReport(w io.Writer, s *Summary, format string) error {
	switch format {
	case "text":
		return writeTextReport(w, s)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "csv":
		return writeCSVReport(w, s)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTextReport(w io.Writer, s *Summary) error {
	p := &errWriter{w: w}
	p.printf("========================================\n")
	p.printf("Laundry Sorting Report\n")
	p.printf("========================================\n")
	p.printf("Images:           %d\n", s.Total)
	for _, k := range sortedKeys(s.Outcomes) {
		p.printf("  %-16s %d\n", k+":", s.Outcomes[k])
	}
	p.printf("Fabric fallbacks: %d\n", s.FabricFallbacks)
	p.printf("\nMean confidence:\n")
	p.printf("  Clothing: %.1f%%\n", s.MeanClothingConfidence*100)
	p.printf("  Fabric:   %.1f%%\n", s.MeanFabricConfidence*100)
	p.printf("  Color:    %.1f%%\n", s.MeanColorConfidence*100)

	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"Clothing types", s.ClothTypes},
		{"Fabrics", s.Fabrics},
		{"Colors", s.Colors},
	} {
		if len(section.counts) == 0 {
			continue
		}
		p.printf("\n%s:\n", section.title)
		for _, k := range sortedKeys(section.counts) {
			p.printf("  %-16s %d\n", k, section.counts[k])
		}
	}

	var failures []Record
	for _, r := range s.Records {
		if r.Outcome == OutcomeFailed {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		p.printf("\nFailures:\n")
		for _, r := range failures {
			p.printf("  ❌ %s (%s): %s\n", r.Filename, r.BatchID, r.Error)
		}
	}
	return p.err
}

func writeCSVReport(w io.Writer, s *Summary) error {
	writer := csv.NewWriter(w)

	header := []string{"Batch ID", "Image ID", "Filename", "Outcome", "Cloth Type", "Clothing Confidence",
		"Fabric", "Fabric Fallback", "Fabric Confidence", "Color", "Color Confidence", "Care", "Error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range s.Records {
		row := []string{
			r.BatchID,
			r.ImageID,
			r.Filename,
			r.Outcome,
			r.ClothType,
			strconv.FormatFloat(r.ClothingConfidence, 'f', 4, 64),
			r.Fabric,
			strconv.FormatBool(r.FabricFallback),
			strconv.FormatFloat(r.FabricConfidence, 'f', 4, 64),
			r.Color,
			strconv.FormatFloat(r.ColorConfidence, 'f', 4, 64),
			r.CareTitle,
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errWriter keeps the first write error so the report body stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (p *errWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
