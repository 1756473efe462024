package bandit

import (
	"math"
	"math/rand"
)

// SafeRatio returns num/den, or 0 when den is not positive.
func SafeRatio(num, den float64) float64 {
	if den <= 0 || math.IsNaN(den) || math.IsNaN(num) {
		return 0
	}
	return num / den
}

func CTR(clicks, impressions int64) float64 {
	return SafeRatio(float64(clicks), float64(impressions))
}

func ROAS(revenue, spend float64) float64 {
	return SafeRatio(revenue, spend)
}

// CPM is cost per thousand impressions.
func CPM(spend float64, impressions int64) float64 {
	return SafeRatio(spend*1000, float64(impressions))
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// sampleGamma draws from Gamma(shape, 1) with Marsaglia-Tsang.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		// boost: Gamma(a) = Gamma(a+1) * U^(1/a)
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// SampleBeta draws from Beta(a, b) as a ratio of Gamma draws.
// Both shapes are floored so a decayed arm never produces NaN.
func SampleBeta(rng *rand.Rand, a, b, floor float64) float64 {
	if floor <= 0 {
		floor = defaultFloor
	}
	a = math.Max(a, floor)
	b = math.Max(b, floor)

	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return a / (a + b)
	}
	return x / (x + y)
}

func posteriorMean(successes, failures float64) float64 {
	return SafeRatio(successes, successes+failures)
}
