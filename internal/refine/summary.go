package refine

import "math"

// Summary compares quality before and after refinement.
type Summary struct {
	Original           float64 `json:"original_quality"`
	Refined            float64 `json:"refined_quality"`
	Improvement        float64 `json:"improvement"`
	ImprovementPercent float64 `json:"improvement_percent"`
	Successful         bool    `json:"was_successful"`
}

// Summarize reports the improvement from original to refined. The percentage
// is zero when the original score is zero.
func Summarize(original, refined float64) Summary {
	improvement := refined - original
	pct := 0.0
	if original > 0 {
		pct = improvement / original * 100
	}
	return Summary{
		Original:           round(original, 3),
		Refined:            round(refined, 3),
		Improvement:        round(improvement, 3),
		ImprovementPercent: round(pct, 1),
		Successful:         refined > original,
	}
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
