package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/care"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
)

// writeAnalysis prints one analyzed image the way the results page shows it.
func writeAnalysis(w io.Writer, a *models.Analysis) {
	fmt.Fprintf(w, "\n[%s] %s\n", a.ID, a.Filename)

	switch {
	case a.IntakeError != "":
		fmt.Fprintf(w, "  ❌ Error processing image: %s\n", a.IntakeError)
		return
	case a.ClothingError != "":
		fmt.Fprintf(w, "  ❌ Error calling Cloth Type API: %s\n", a.ClothingError)
		return
	case a.Plan != nil && a.Plan.Kind == care.KindNotClothing:
		fmt.Fprintf(w, "  🚫 Not Clothing - This item doesn't appear to be clothing (%.1f%%)\n", a.Clothing.Confidence*100)
		return
	}

	fmt.Fprintf(w, "  👕 Clothing Type: %s (%.1f%%)\n", a.Clothing.ClothType, a.Clothing.Confidence*100)

	switch {
	case a.FabricError != "":
		fmt.Fprintf(w, "  ❌ Fabric API Error: %s\n", a.FabricError)
		return
	case a.Plan == nil:
		fmt.Fprintf(w, "  ❌ %s\n", a.PlanError)
		return
	}

	plan := a.Plan
	fmt.Fprintf(w, "  🧵 Fabric: %s (%.1f%%)\n", plan.Fabric, a.Fabric.Confidence*100)
	if plan.FabricFallback {
		fmt.Fprintf(w, "     unrecognized fabric %q, showing %s care\n", plan.ReportedFabric, plan.Fabric)
	}
	if plan.Care != nil {
		fmt.Fprintf(w, "  %s %s\n", plan.Care.Icon, plan.Care.Title)
		for _, line := range plan.Care.Instructions {
			fmt.Fprintf(w, "     • %s\n", line)
		}
	}
	if a.Fabric.WashingAdvice != "" {
		fmt.Fprintf(w, "  Fabric Care: %s\n", a.Fabric.WashingAdvice)
	}
	if plan.Kind != care.KindFabricAndColor {
		return
	}

	switch {
	case a.ColorError != "":
		fmt.Fprintf(w, "  ❌ Color API Error: %s\n", a.ColorError)
	case plan.ColorUnresolved:
		fmt.Fprintf(w, "  🎨 Could not determine color (%q)\n", a.Color.Color)
	default:
		fmt.Fprintf(w, "  🎨 Color: %s (%.1f%%)\n", plan.Color, a.Color.Confidence*100)
		if plan.Advisory != nil {
			for _, line := range strings.Split(strings.TrimSpace(plan.Advisory.Text()), "\n") {
				fmt.Fprintf(w, "     %s\n", line)
			}
		}
	}
}
