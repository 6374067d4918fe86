package voice

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultPitchFallbackHz = 150.0
	DefaultPitchThreshold  = 0.1
	DefaultPitchMinHz      = 75.0
	DefaultPitchMaxHz      = 4000.0
	DefaultTempo           = 120.0

	// absolute magnitude floor below which a bin is treated as silence
	pitchMagnitudeFloor = 1e-6
)

// SignalAnalyzer estimates pitch and tempo directly from a waveform.
type SignalAnalyzer struct {
	PitchThreshold  float64 // fraction of the frame peak a candidate must exceed
	PitchMinHz      float64
	PitchMaxHz      float64
	PitchFallbackHz float64 // reported when no candidate survives
	MinBPM          float64
	MaxBPM          float64
}

func NewSignalAnalyzer() *SignalAnalyzer {
	return &SignalAnalyzer{
		PitchThreshold:  DefaultPitchThreshold,
		PitchMinHz:      DefaultPitchMinHz,
		PitchMaxHz:      DefaultPitchMaxHz,
		PitchFallbackHz: DefaultPitchFallbackHz,
		MinBPM:          60,
		MaxBPM:          180,
	}
}

// Analyze returns (pitch Hz, tempo BPM).
func (a *SignalAnalyzer) Analyze(spec *Spectrogram) (float64, float64) {
	return a.Pitch(spec), a.Tempo(spec)
}

// PitchCandidates collects interpolated peak frequencies from every frame
// whose magnitude clears the confidence threshold.
func (a *SignalAnalyzer) PitchCandidates(spec *Spectrogram) []float64 {
	if spec == nil || len(spec.Frames) == 0 {
		return nil
	}

	binHz := float64(spec.SampleRate) / float64(spec.FrameSize)
	lo := int(math.Ceil(a.PitchMinHz / binHz))
	hi := int(math.Floor(a.PitchMaxHz / binHz))
	if lo < 1 {
		lo = 1
	}

	var candidates []float64
	for _, mag := range spec.Frames {
		top := hi
		if top > len(mag)-2 {
			top = len(mag) - 2
		}
		if top < lo {
			continue
		}

		peak := floats.Max(mag[lo : top+1])
		if peak <= pitchMagnitudeFloor {
			continue
		}
		threshold := a.PitchThreshold * peak

		for k := lo; k <= top; k++ {
			m := mag[k]
			if m <= threshold || m <= pitchMagnitudeFloor {
				continue
			}
			if m <= mag[k-1] || m < mag[k+1] {
				continue
			}
			freq := (float64(k) + parabolicOffset(mag[k-1], m, mag[k+1])) * binHz
			if freq > 0 {
				candidates = append(candidates, freq)
			}
		}
	}
	return candidates
}

// Pitch is the mean candidate frequency, or PitchFallbackHz without candidates.
func (a *SignalAnalyzer) Pitch(spec *Spectrogram) float64 {
	candidates := a.PitchCandidates(spec)
	if len(candidates) == 0 {
		return a.PitchFallbackHz
	}
	return stat.Mean(candidates, nil)
}

func parabolicOffset(alpha, beta, gamma float64) float64 {
	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return 0
	}
	offset := 0.5 * (alpha - gamma) / denom
	if offset > 0.5 || offset < -0.5 {
		return 0
	}
	return offset
}

// OnsetEnvelope is the half-wave rectified log-magnitude flux per frame.
func OnsetEnvelope(spec *Spectrogram) []float64 {
	if spec == nil || len(spec.Frames) == 0 {
		return nil
	}

	envelope := make([]float64, len(spec.Frames))
	prev := logCompress(spec.Frames[0])
	for t := 1; t < len(spec.Frames); t++ {
		cur := logCompress(spec.Frames[t])
		var flux float64
		for k := range cur {
			if d := cur[k] - prev[k]; d > 0 {
				flux += d
			}
		}
		envelope[t] = flux
		prev = cur
	}
	return envelope
}

func logCompress(mag []float64) []float64 {
	out := make([]float64, len(mag))
	for i, m := range mag {
		out[i] = math.Log1p(m)
	}
	return out
}

// Tempo picks the strongest periodicity of the onset envelope between MinBPM
// and MaxBPM. Lags are weighted by a log-normal prior centred on 120 BPM so
// that half-tempo multiples do not win on ties. DefaultTempo is returned when
// the envelope carries no periodicity.
func (a *SignalAnalyzer) Tempo(spec *Spectrogram) float64 {
	envelope := OnsetEnvelope(spec)
	if len(envelope) < 4 {
		return DefaultTempo
	}

	mean := stat.Mean(envelope, nil)
	centred := make([]float64, len(envelope))
	for i, v := range envelope {
		centred[i] = v - mean
	}

	framesPerSecond := float64(spec.SampleRate) / float64(spec.HopSize)
	minLag := int(math.Floor(60.0 * framesPerSecond / a.MaxBPM))
	maxLag := int(math.Ceil(60.0 * framesPerSecond / a.MinBPM))
	if minLag < 1 {
		minLag = 1
	}

	autocorr := autocorrelation(centred, maxLag+2)
	if len(autocorr) == 0 || autocorr[0] <= 0 {
		return DefaultTempo
	}
	if maxLag > len(autocorr)-2 {
		maxLag = len(autocorr) - 2
	}

	bestLag := 0
	bestScore := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if lag < 1 {
			continue
		}
		v := autocorr[lag]
		if v <= 0 || v <= autocorr[lag-1] || v < autocorr[lag+1] {
			continue
		}
		bpm := 60.0 * framesPerSecond / float64(lag)
		octaves := math.Log2(bpm / DefaultTempo)
		score := v * math.Exp(-0.5*octaves*octaves)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return DefaultTempo
	}

	lag := float64(bestLag) + parabolicOffset(autocorr[bestLag-1], autocorr[bestLag], autocorr[bestLag+1])
	return 60.0 * framesPerSecond / lag
}

// autocorrelation returns the mean-product autocorrelation normalised to lag 0.
func autocorrelation(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}

	ac := make([]float64, maxLag)
	for lag := 0; lag < maxLag; lag++ {
		var sum float64
		n := len(signal) - lag
		for i := 0; i < n; i++ {
			sum += signal[i] * signal[i+lag]
		}
		if n > 0 {
			ac[lag] = sum / float64(n)
		}
	}

	if len(ac) > 0 && ac[0] > 0 {
		norm := ac[0]
		for i := range ac {
			ac[i] /= norm
		}
	}
	return ac
}
