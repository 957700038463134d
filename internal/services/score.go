package services

import "log"

// ScoreInput describes the processed full-size tier of a photo.
type ScoreInput struct {
	Width        int
	Height       int
	SizeBytes    int
	SourceFormat string // format of the original upload ("jpeg", "png", "gif", "webp")
}

// Scorer assigns a quality score in [1,100] to a processed photo. The default
// implementation is a resolution/aspect heuristic; a frequency-domain
// sharpness analyzer can be swapped in without touching the pipeline.
type Scorer interface {
	Score(in ScoreInput) int
}

const neutralScore = 75

// HeuristicScorer scores from resolution, aspect ratio, compressed size and
// source format. Monotonic in legibility: more pixels and saner aspect ratios
// never lower the score.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(in ScoreInput) (score int) {
	// Scoring must never take the pipeline down with it.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("quality scoring panicked, using neutral score: %v", r)
			score = neutralScore
		}
	}()

	if in.Width <= 0 || in.Height <= 0 {
		return neutralScore
	}

	score = 100
	pixels := in.Width * in.Height

	// Resolution bands.
	switch {
	case pixels < 200*200:
		score -= 30
	case pixels < 400*400:
		score -= 15
	case pixels < 800*800:
		score -= 5
	}

	// Aspect ratio bands.
	ratio := float64(in.Width) / float64(in.Height)
	switch {
	case ratio > 2.5 || ratio < 0.4:
		score -= 15
	case ratio > 2.0 || ratio < 0.5:
		score -= 8
	case ratio > 1.8 || ratio < 0.55:
		score -= 3
	}

	// Compressed size bands: implausibly small means low detail, implausibly
	// large means unoptimized.
	switch {
	case in.SizeBytes > 0 && in.SizeBytes < 10*1024:
		score -= 10
	case in.SizeBytes > 5*1024*1024:
		score -= 5
	}

	if in.SourceFormat == "gif" {
		score -= 5
	}

	score -= sharpnessPenalty(pixels, ratio)

	return clampScore(score)
}

// sharpnessPenalty is a bounded proxy for sharpness built from the resolution
// tier plus a near-square bonus, capped at 20 points. Not real edge
// detection.
func sharpnessPenalty(pixels int, ratio float64) int {
	penalty := 20
	switch {
	case pixels >= 800*800:
		penalty -= 14
	case pixels >= 400*400:
		penalty -= 9
	case pixels >= 200*200:
		penalty -= 4
	}
	if ratio >= 0.8 && ratio <= 1.25 {
		penalty -= 6
	}
	if penalty < 0 {
		penalty = 0
	}
	return penalty
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 100 {
		return 100
	}
	return score
}
