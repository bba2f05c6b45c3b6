package ld2412

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// energyWindow bounds the per-session energy samples kept for the summary
// statistics; roughly half a minute of frames at the device's report rate.
const energyWindow = 256

// Statistics is a snapshot of the running counters. Counters accumulate
// monotonically until an explicit Clear.
type Statistics struct {
	TotalFrames      uint64 `json:"total_frames"`
	MovingDetections uint64 `json:"moving_detections"`
	StillDetections  uint64 `json:"still_detections"`
	NoTarget         uint64 `json:"no_target"`
	MaxDistanceCM    int    `json:"max_distance_cm"`
	MinDistanceCM    int    `json:"min_distance_cm"`

	MovingEnergyMean   float64 `json:"moving_energy_mean"`
	MovingEnergyStdDev float64 `json:"moving_energy_stddev"`
	StillEnergyMean    float64 `json:"still_energy_mean"`
	StillEnergyStdDev  float64 `json:"still_energy_stddev"`
}

// Aggregator folds measurements into running counters. It is stateless
// with respect to framing: a pure reducer over decoded measurements.
type Aggregator struct {
	mu    sync.Mutex
	stats Statistics

	movingEnergies []float64
	stillEnergies  []float64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe folds one measurement into the counters. Noise-detection states
// (0x04-0x06) count toward the frame total only; distance extremes are
// tracked only while a target is present and reporting a nonzero distance.
func (a *Aggregator) Observe(m *Measurement) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalFrames++
	switch m.State {
	case StateNoTarget:
		a.stats.NoTarget++
	case StateMoving:
		a.stats.MovingDetections++
	case StateStill:
		a.stats.StillDetections++
	case StateMovingAndStill:
		a.stats.MovingDetections++
		a.stats.StillDetections++
	}

	if (m.State.Moving() || m.State.Still()) && m.DetectionDistanceCM > 0 {
		d := m.DetectionDistanceCM
		if d > a.stats.MaxDistanceCM {
			a.stats.MaxDistanceCM = d
		}
		if a.stats.MinDistanceCM == 0 || d < a.stats.MinDistanceCM {
			a.stats.MinDistanceCM = d
		}
	}

	a.movingEnergies = appendWindowed(a.movingEnergies, float64(m.MovingEnergy))
	a.stillEnergies = appendWindowed(a.stillEnergies, float64(m.StillEnergy))
}

func appendWindowed(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > energyWindow {
		s = append(s[:0], s[len(s)-energyWindow:]...)
	}
	return s
}

// Snapshot returns the current statistics.
func (a *Aggregator) Snapshot() Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.stats
	s.MovingEnergyMean, s.MovingEnergyStdDev = summarize(a.movingEnergies)
	s.StillEnergyMean, s.StillEnergyStdDev = summarize(a.stillEnergies)
	return s
}

// summarize reduces a sample window to mean and sample standard deviation.
// A lone sample has no sample deviation; gonum reports NaN there, which
// JSON cannot carry, so report zero instead.
func summarize(samples []float64) (mean, stddev float64) {
	switch len(samples) {
	case 0:
		return 0, 0
	case 1:
		return samples[0], 0
	}
	return stat.MeanStdDev(samples, nil)
}

// Clear resets all counters and samples.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = Statistics{}
	a.movingEnergies = a.movingEnergies[:0]
	a.stillEnergies = a.stillEnergies[:0]
}
