package compress

import "math"

const (
	minQuality = 0.1
	maxQuality = 0.7

	// below this size ratio pages are also rendered at the lower scale
	lowScaleRatio = 0.3
	lowScale      = 1.0
	highScale     = 1.5

	minSuggestedTargetKB = 20
	suggestedTargetShare = 0.4
	extremeTierShare     = 0.2

	TierExtreme  = "extreme"
	TierStandard = "standard"
)

// ComputeParams derives the one-shot quality and scale from the target/original size ratio.
// The result is a pure function of its inputs.
func ComputeParams(targetSizeKB, originalSizeBytes int) Params {
	ratio := float64(targetSizeKB) * 1024 / float64(originalSizeBytes)

	scale := highScale
	if ratio < lowScaleRatio {
		scale = lowScale
	}

	return Params{
		TargetSizeKB:      targetSizeKB,
		OriginalSizeBytes: originalSizeBytes,
		SizeRatio:         ratio,
		Quality:           math.Max(minQuality, math.Min(maxQuality, ratio)),
		Scale:             scale,
	}
}

// retryParams is the lower preset used by additional passes
func retryParams(p Params) Params {
	p.Quality = math.Max(minQuality, p.Quality/2)
	p.Scale = lowScale
	return p
}

// SuggestTargetSizeKB proposes a default target of 40% of the input, never below 20 KB
func SuggestTargetSizeKB(originalSizeBytes int) int {
	kb := float64(originalSizeBytes) / 1024
	return max(minSuggestedTargetKB, int(math.Floor(kb*suggestedTargetShare)))
}

// Tier labels targets under 20% of the input as extreme
func Tier(targetSizeKB, originalSizeBytes int) string {
	if float64(targetSizeKB) < float64(originalSizeBytes)/1024*extremeTierShare {
		return TierExtreme
	}
	return TierStandard
}

// ReductionRatio is the rounded percentage by which size shrank; negative if it grew
func ReductionRatio(newSize, originalSize int) int {
	return roundHalfUp((1 - float64(newSize)/float64(originalSize)) * 100)
}

// progressPercent reports pages done out of total as a rounded percentage
func progressPercent(done, total int) int {
	return roundHalfUp(float64(done) / float64(total) * 100)
}

// roundHalfUp rounds .5 towards positive infinity
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
