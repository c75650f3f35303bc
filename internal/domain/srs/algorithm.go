package srs

import (
	"fmt"
	"math"
)

// DefaultParameters are the FSRS-6 default weights.
var DefaultParameters = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

// algo holds the weights and the constants derived from them.
type algo struct {
	w      [21]float64
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

func newAlgo(p [21]float64) algo {
	decay := -p[20]
	return algo{w: p, decay: decay, factor: math.Pow(0.9, 1/decay) - 1}
}

// ValidateParameters checks that every weight is finite and non-negative and
// that the decay weight lies in [0.1, 0.8].
func ValidateParameters(p [21]float64) error {
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: w[%d]=%v", ErrInvalidParameters, i, v)
		}
	}
	if p[20] < 0.1 || p[20] > 0.8 {
		return fmt.Errorf("%w: decay w[20]=%v outside [0.1, 0.8]", ErrInvalidParameters, p[20])
	}
	return nil
}

// retrievability is R(t, S) = (1 + factor*t/S)^decay.
func (a *algo) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+a.factor*elapsedDays/stability, a.decay)
}

func (a *algo) initStability(r Rating) float64 {
	return clampS(a.w[r-1])
}

// initDifficulty is D0(G) = w4 - e^(w5*(G-1)) + 1.
func (a *algo) initDifficulty(r Rating, clamp bool) float64 {
	d := a.w[4] - math.Exp(a.w[5]*float64(r-1)) + 1
	if clamp {
		return clampD(d)
	}
	return d
}

// intervalDays is the unrounded interval at which recall probability falls
// to the desired retention.
func (a *algo) intervalDays(stability, retention float64) float64 {
	return stability / a.factor * (math.Pow(retention, 1/a.decay) - 1)
}

func (a *algo) shortTermStability(stability float64, r Rating) float64 {
	sInc := math.Exp(a.w[17]*(float64(r)-3+a.w[18])) * math.Pow(stability, -a.w[19])
	if r == Good || r == Easy {
		sInc = math.Max(sInc, 1)
	}
	return clampS(stability * sInc)
}

// nextDifficulty applies linear damping then mean reversion toward D0(Easy).
func (a *algo) nextDifficulty(d float64, r Rating) float64 {
	delta := -a.w[6] * (float64(r) - 3)
	next := d + (10-d)*delta/9
	return clampD(a.w[7]*a.initDifficulty(Easy, false) + (1-a.w[7])*next)
}

func (a *algo) nextStability(d, s, r float64, rating Rating) float64 {
	if rating == Again {
		return a.nextForgetStability(d, s, r)
	}
	return a.nextRecallStability(d, s, r, rating)
}

func (a *algo) nextRecallStability(d, s, r float64, rating Rating) float64 {
	hardPenalty, easyBonus := 1.0, 1.0
	switch rating {
	case Hard:
		hardPenalty = a.w[15]
	case Easy:
		easyBonus = a.w[16]
	}
	return clampS(s * (1 + math.Exp(a.w[8])*(11-d)*math.Pow(s, -a.w[9])*
		(math.Exp((1-r)*a.w[10])-1)*hardPenalty*easyBonus))
}

func (a *algo) nextForgetStability(d, s, r float64) float64 {
	long := a.w[11] * math.Pow(d, -a.w[12]) * (math.Pow(s+1, a.w[13]) - 1) * math.Exp((1-r)*a.w[14])
	short := s / math.Exp(a.w[17]*a.w[18])
	return clampS(math.Min(long, short))
}

func clampS(s float64) float64 { return math.Max(s, 0.001) }

func clampD(d float64) float64 { return math.Min(math.Max(d, 1), 10) }
