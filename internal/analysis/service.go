// Package analysis runs an upload through intake, the three classifiers and
// the care resolver.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/intake"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

// Image outcomes reported to an Observer.
const (
	OutcomeResolved    = "resolved"
	OutcomeNotClothing = "not_clothing"
	OutcomeFailed      = "failed"
)

// Classifier is the part of the gateway the service depends on.
type Classifier interface {
	Classify(ctx context.Context, filename string, jpeg []byte) *classifier.Result
}

// Observer is told how each image ended up.
type Observer interface {
	ObserveImage(outcome string)
}

type Service struct {
	classifier Classifier
	guide      *care.Guide
	profile    string
	observer   Observer
}

func NewService(c Classifier, guide *care.Guide, profile string) *Service {
	if guide == nil {
		guide = care.Default()
	}
	return &Service{classifier: c, guide: guide, profile: profile}
}

// SetObserver attaches an Observer; nil disables reporting.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Guide returns the care guide the service resolves against.
func (s *Service) Guide() *care.Guide {
	return s.guide
}

// AnalyzeBatch processes uploads one at a time in the order given. A failure
// on one image is recorded on that image and the batch carries on.
func (s *Service) AnalyzeBatch(ctx context.Context, uploads []intake.Upload) *models.Batch {
	batch := &models.Batch{
		ID:        uuid.NewString(),
		Images:    make([]models.Analysis, 0, len(uploads)),
		Profile:   s.profile,
		CreatedAt: time.Now(),
	}

	for i, u := range uploads {
		slog.Info("Processing image", "batch_id", batch.ID, "filename", u.Filename, "progress", fmt.Sprintf("%d/%d", i+1, len(uploads)))
		batch.Images = append(batch.Images, s.AnalyzeImage(ctx, i, u))
	}

	resolved, failed := batch.Counts()
	slog.Info("Batch processed", "batch_id", batch.ID, "images", len(uploads), "resolved", resolved, "failed", failed)
	return batch
}

// AnalyzeImage decodes one upload, classifies it and resolves the care plan.
// Calls already issued are not cancelled if ctx is.
func (s *Service) AnalyzeImage(ctx context.Context, index int, u intake.Upload) models.Analysis {
	a := models.Analysis{
		ID:       fmt.Sprintf("img_%d", index+1),
		Filename: u.Filename,
	}

	img, err := intake.Process(u)
	if err != nil {
		slog.Warn("Unable to read upload", "filename", u.Filename, "err", err)
		a.IntakeError = err.Error()
		s.report(OutcomeFailed)
		return a
	}
	a.Checksum = img.Checksum
	a.Format = img.Format
	a.ImageWidth = img.Width
	a.ImageHeight = img.Height
	a.PreviewURI = img.PreviewDataURI()

	res := s.classifier.Classify(context.WithoutCancel(ctx), u.Filename, img.JPEG)
	a.Clothing, a.ClothingError = res.Clothing, errString(res.ClothingErr)
	a.Fabric, a.FabricError = res.Fabric, errString(res.FabricErr)
	a.Color, a.ColorError = res.Color, errString(res.ColorErr)

	plan, err := s.resolve(res)
	if err != nil {
		a.PlanError = err.Error()
		slog.Warn("No care plan for image", "filename", u.Filename, "err", err)
		s.report(OutcomeFailed)
		return a
	}
	a.Plan = plan

	if plan.Kind == care.KindNotClothing {
		s.report(OutcomeNotClothing)
	} else {
		s.report(OutcomeResolved)
	}
	return a
}

var (
	errNoClothing = errors.New("clothing type unavailable")
	errNoFabric   = errors.New("fabric type unavailable")
)

// resolve runs after all three calls have returned. The clothing result
// gates the rest: without it nothing can be shown, and a not-clothing
// verdict hides fabric and color regardless of their outcome.
func (s *Service) resolve(res *classifier.Result) (*care.RenderPlan, error) {
	if res.ClothingErr != nil {
		return nil, fmt.Errorf("%w: %v", errNoClothing, res.ClothingErr)
	}
	if care.IsNotClothing(res.Clothing.IsClothing, res.Clothing.ClothType) {
		plan := care.RenderPlan{Kind: care.KindNotClothing}
		return &plan, nil
	}
	if res.FabricErr != nil {
		return nil, fmt.Errorf("%w: %v", errNoFabric, res.FabricErr)
	}

	in := care.Input{
		IsClothing: res.Clothing.IsClothing,
		ClothType:  res.Clothing.ClothType,
		Fabric:     res.Fabric.FabricType,
	}
	if res.ColorErr == nil {
		in.Color = res.Color.Color
	}

	plan, err := s.guide.Resolve(in)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Service) report(outcome string) {
	if s.observer != nil {
		s.observer.ObserveImage(outcome)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
