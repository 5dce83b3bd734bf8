package baseline

import "math"

// MaxDeviation caps the reported distance from the mean, in standard deviations
const MaxDeviation = 10.0

// Stat is a running mean/variance accumulator (Welford)
type Stat struct {
	Count uint64  `cbor:"n" json:"count"`
	Mean  float64 `cbor:"mean" json:"mean"`
	M2    float64 `cbor:"m2" json:"m2"`
}

// Add accumulates a sample
func (s *Stat) Add(x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return
	}

	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (x - s.Mean)
}

// Variance returns the sample variance
func (s Stat) Variance() float64 {
	if s.Count < 2 {
		return 0
	}

	return s.M2 / float64(s.Count-1)
}

// StdDev returns the sample standard deviation
func (s Stat) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Deviation returns |x - mean| in standard deviations, clipped to [0, MaxDeviation]
// NOTE: with no spread, any difference from the mean is maximal
func (s Stat) Deviation(x float64) float64 {
	if s.Count == 0 || math.IsNaN(x) {
		return 0
	}

	diff := math.Abs(x - s.Mean)
	std := s.StdDev()

	if std < 1e-9 {
		if diff < 1e-9 {
			return 0
		}

		return MaxDeviation
	}

	return math.Min(diff/std, MaxDeviation)
}
