package report

import (
	"fmt"
	"strings"

	"EMSpark/internal/domain/models"
)

// TimeLabel describes the spec's bucket selection, e.g. "06:00-08:00 hrs"
// or "04:45-12:30 (All India)". A trailing marker flags multi-period answers.
func TimeLabel(spec models.QuerySpec, totalSpecs int) string {
	var label string
	if spec.Granularity() == models.GranularityQuarter {
		label = joinRuns(spec.Slots(), 15) + " (All India)"
	} else {
		hours := spec.Hours()
		if len(hours) >= 24 {
			label = "00:00-24:00 hrs"
		} else {
			label = joinRuns(hours, 60) + " hrs"
		}
	}
	if totalSpecs > 1 {
		label += " [Multi-Period]"
	}
	return label
}

// DurationHours is the delivery time covered by one day of the selection.
func DurationHours(spec models.QuerySpec) float64 {
	return float64(len(spec.Buckets())*spec.Granularity().BucketMinutes()) / 60
}

// DateLabel names the requested period(s).
func DateLabel(specs []models.QuerySpec) string {
	switch {
	case len(specs) == 0:
		return ""
	case len(specs) > 1:
		return fmt.Sprintf("%d Periods", len(specs))
	case specs[0].Start() == specs[0].End():
		return specs[0].Start().String()
	default:
		return specs[0].Start().String() + " to " + specs[0].End().String()
	}
}

// joinRuns renders contiguous bucket runs as clock ranges. Bucket b of
// width w minutes covers [(b-1)*w, b*w).
func joinRuns(buckets []int, width int) string {
	if len(buckets) == 0 {
		return ""
	}
	var parts []string
	start, prev := buckets[0], buckets[0]
	flush := func() {
		parts = append(parts, clock((start-1)*width)+"-"+clock(prev*width))
	}
	for _, b := range buckets[1:] {
		if b == prev+1 {
			prev = b
			continue
		}
		flush()
		start, prev = b, b
	}
	flush()
	return strings.Join(parts, ", ")
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
