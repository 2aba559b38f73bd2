package pipeline

import "math"

// Summary aggregates a batch of runs.
type Summary struct {
	NumCases           int
	NumSuccessful      int
	NumFailed          int
	MeanDice           *float64
	StdDice            *float64
	MinDice            *float64
	MaxDice            *float64
	MeanElapsedSeconds float64
}

// Summarize computes summary statistics over a batch. Dice statistics
// cover only successful runs that produced a score.
func Summarize(items []BatchItem) Summary {
	s := Summary{NumCases: len(items)}

	var dice []float64
	var elapsedSum float64
	for _, it := range items {
		if it.Err != nil {
			s.NumFailed++
			continue
		}
		s.NumSuccessful++
		elapsedSum += it.Result.ElapsedSeconds
		if it.Result.DiceScore != nil {
			dice = append(dice, *it.Result.DiceScore)
		}
	}
	if s.NumSuccessful > 0 {
		s.MeanElapsedSeconds = elapsedSum / float64(s.NumSuccessful)
	}
	if len(dice) == 0 {
		return s
	}

	mean, std := meanStd(dice)
	lo, hi := dice[0], dice[0]
	for _, d := range dice[1:] {
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	s.MeanDice = &mean
	s.StdDice = &std
	s.MinDice = &lo
	s.MaxDice = &hi
	return s
}

// meanStd returns the mean and sample standard deviation. A single
// sample has zero deviation.
func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
