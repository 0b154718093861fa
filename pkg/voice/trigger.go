package voice

import "math"

// EnergyTrigger scores a segment by its RMS level mapped linearly between
// Floor (confidence 0) and Ceiling (confidence 1). Levels are normalized to [0,1].
type EnergyTrigger struct {
	Floor   float64
	Ceiling float64
}

// DefaultEnergyTrigger ignores near silence and saturates on normal speech
func DefaultEnergyTrigger() EnergyTrigger {
	return EnergyTrigger{Floor: 0.01, Ceiling: 0.08}
}

func (t EnergyTrigger) Evaluate(seg Segment) float64 {
	if len(seg.PCM) == 0 || t.Ceiling <= t.Floor {
		return 0
	}

	var sum float64
	for _, s := range seg.PCM {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(seg.PCM)))

	conf := (rms - t.Floor) / (t.Ceiling - t.Floor)
	return math.Max(0, math.Min(1, conf))
}
