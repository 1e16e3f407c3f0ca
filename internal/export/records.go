// Package export flattens processed batches into rows that can be written
// to Parquet, JSONL or YAML files and summarized into reports.
package export

import (
	"time"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

// OutcomeFailed marks a row for which no care plan was produced. Other rows
// carry the plan kind as their outcome.
const OutcomeFailed = "failed"

// Record is one analyzed image.
type Record struct {
	BatchID     string `parquet:"batch_id" json:"batch_id" yaml:"batch_id"`
	ImageID     string `parquet:"image_id" json:"image_id" yaml:"image_id"`
	Filename    string `parquet:"filename" json:"filename" yaml:"filename"`
	Checksum    string `parquet:"checksum" json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Profile     string `parquet:"profile" json:"profile,omitempty" yaml:"profile,omitempty"`
	ProcessedAt string `parquet:"processed_at" json:"processed_at" yaml:"processed_at"`

	Outcome string `parquet:"outcome" json:"outcome" yaml:"outcome"`
	Error   string `parquet:"error" json:"error,omitempty" yaml:"error,omitempty"`

	IsClothing         bool    `parquet:"is_clothing" json:"is_clothing" yaml:"is_clothing"`
	ClothType          string  `parquet:"cloth_type" json:"cloth_type,omitempty" yaml:"cloth_type,omitempty"`
	ClothingConfidence float64 `parquet:"clothing_confidence" json:"clothing_confidence" yaml:"clothing_confidence"`

	Fabric           string  `parquet:"fabric" json:"fabric,omitempty" yaml:"fabric,omitempty"`
	ReportedFabric   string  `parquet:"reported_fabric" json:"reported_fabric,omitempty" yaml:"reported_fabric,omitempty"`
	FabricFallback   bool    `parquet:"fabric_fallback" json:"fabric_fallback" yaml:"fabric_fallback"`
	FabricConfidence float64 `parquet:"fabric_confidence" json:"fabric_confidence" yaml:"fabric_confidence"`

	Color           string  `parquet:"color" json:"color,omitempty" yaml:"color,omitempty"`
	ColorConfidence float64 `parquet:"color_confidence" json:"color_confidence" yaml:"color_confidence"`

	CareTitle string `parquet:"care_title" json:"care_title,omitempty" yaml:"care_title,omitempty"`
}

// FromBatch converts a batch into rows, one per image, in upload order.
func FromBatch(b *models.Batch) []Record {
	records := make([]Record, 0, len(b.Images))
	processedAt := b.CreatedAt.UTC().Format(time.RFC3339)

	for i := range b.Images {
		a := &b.Images[i]
		r := Record{
			BatchID:     b.ID,
			ImageID:     a.ID,
			Filename:    a.Filename,
			Checksum:    a.Checksum,
			Profile:     b.Profile,
			ProcessedAt: processedAt,
			Outcome:     OutcomeFailed,
			Error:       firstNonEmpty(a.IntakeError, a.PlanError),
		}

		if a.Clothing != nil {
			r.IsClothing = a.Clothing.IsClothing
			r.ClothType = a.Clothing.ClothType
			r.ClothingConfidence = a.Clothing.Confidence
		}
		if a.Fabric != nil {
			r.ReportedFabric = a.Fabric.FabricType
			r.FabricConfidence = a.Fabric.Confidence
		}
		if a.Color != nil {
			r.Color = a.Color.Color
			r.ColorConfidence = a.Color.Confidence
		}

		if a.Plan != nil {
			r.Outcome = string(a.Plan.Kind)
			r.Fabric = a.Plan.Fabric
			r.FabricFallback = a.Plan.FabricFallback
			if a.Plan.Care != nil {
				r.CareTitle = a.Plan.Care.Title
			}
		}

		records = append(records, r)
	}
	return records
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
