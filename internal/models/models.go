package models

import (
	"time"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
)

// Batch represents the images uploaded together in one request
type Batch struct {
	ID        string     `json:"id"`
	Images    []Analysis `json:"images"`
	Profile   string     `json:"profile,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Analysis is the outcome for one uploaded image. Error fields are scoped to
// this image and never affect the rest of the batch.
type Analysis struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Checksum    string `json:"checksum,omitempty"`
	Format      string `json:"format,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	PreviewURI  string `json:"preview_uri,omitempty"`

	// IntakeError is set when the upload could not be decoded; nothing was sent.
	IntakeError string `json:"intake_error,omitempty"`

	Clothing      *classifier.ClothingPrediction `json:"clothing,omitempty"`
	ClothingError string                         `json:"clothing_error,omitempty"`
	Fabric        *classifier.FabricPrediction   `json:"fabric,omitempty"`
	FabricError   string                         `json:"fabric_error,omitempty"`
	Color         *classifier.ColorPrediction    `json:"color,omitempty"`
	ColorError    string                         `json:"color_error,omitempty"`

	Plan      *care.RenderPlan `json:"plan,omitempty"`
	PlanError string           `json:"plan_error,omitempty"`
}

// Failed reports whether no care plan could be produced for the image.
func (a *Analysis) Failed() bool {
	return a.Plan == nil
}

// Counts summarizes a batch for log lines and API responses.
func (b *Batch) Counts() (resolved, failed int) {
	for i := range b.Images {
		if b.Images[i].Failed() {
			failed++
		} else {
			resolved++
		}
	}
	return resolved, failed
}
