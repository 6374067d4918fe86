package voice

// Feature Extraction
//
// Every clip is summarised by 28 time-averaged short-term statistics taken
// from the same STFT used for pitch tracking (2048-sample Hann frames, hop
// 512):
//
//   - MFCC 1-13: log mel energies (26 triangular filters) decorrelated with an
//     orthonormal DCT-II. Describes the spectral envelope, i.e. timbre.
//   - Spectral centroid (Hz): magnitude-weighted mean frequency.
//   - Spectral rolloff (Hz): frequency below which 85% of the magnitude lies.
//   - Zero crossing rate: sign changes per sample in each time-domain frame.
//   - Chroma C..B: energy folded onto the 12 pitch classes between 80 Hz and
//     8 kHz, each frame scaled so its strongest class is 1.
//
// The layout is published by FeatureNames.

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMinDuration = 0.1 // seconds

	melFilterCount   = 26
	rolloffThreshold = 0.85
	chromaMinHz      = 80.0
	chromaMaxHz      = 8000.0
	tuningHz         = 440.0
)

// ExtractFeatureVector derives the fixed-length descriptor for audio. It
// returns ErrExtractionFailed (wrapped) when the clip is shorter than
// minDuration seconds or the statistics are not finite.
func ExtractFeatureVector(ctx context.Context, audio *RawAudio, spec *Spectrogram, minDuration float64) ([]float64, error) {
	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("%w: no samples provided", ErrExtractionFailed)
	}
	if audio.Duration < minDuration {
		return nil, fmt.Errorf("%w: clip is %.3fs, need at least %.3fs", ErrExtractionFailed, audio.Duration, minDuration)
	}
	if spec == nil || len(spec.Frames) == 0 {
		return nil, fmt.Errorf("%w: empty spectrogram", ErrExtractionFailed)
	}

	mfcc, err := meanMFCC(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	centroids := make([]float64, len(spec.Frames))
	rolloffs := make([]float64, len(spec.Frames))
	for i, mag := range spec.Frames {
		centroids[i] = spectralCentroid(mag, spec.Freqs)
		rolloffs[i] = spectralRolloff(mag, spec.Freqs, rolloffThreshold)
	}

	frames := frameSignal(audio.Samples, spec.FrameSize, spec.HopSize)
	zcrs := make([]float64, len(frames))
	for i, frame := range frames {
		zcrs[i] = zeroCrossingRate(frame)
	}

	chroma := meanChroma(spec)

	vector := make([]float64, 0, ExtractedFeatureCount)
	vector = append(vector, mfcc...)
	vector = append(vector,
		stat.Mean(centroids, nil),
		stat.Mean(rolloffs, nil),
		stat.Mean(zcrs, nil),
	)
	vector = append(vector, chroma...)

	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: feature %d is not finite", ErrExtractionFailed, i)
		}
	}

	return vector, nil
}

func meanMFCC(ctx context.Context, spec *Spectrogram) ([]float64, error) {
	filterBank := melFilterBank(melFilterCount, spec.FrameSize, spec.SampleRate, 0, float64(spec.SampleRate)/2)
	if len(filterBank) == 0 {
		return nil, errors.New("unable to build mel filter bank")
	}
	dct := dctMatrix(MFCCCount, melFilterCount)

	sums := make([]float64, MFCCCount)
	power := make([]float64, len(spec.Freqs))
	logMel := make([]float64, melFilterCount)

	for f, mag := range spec.Frames {
		if f%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for k, m := range mag {
			power[k] = m * m
		}
		for i, filter := range filterBank {
			energy := floats.Dot(filter, power)
			if energy < 1e-10 {
				energy = 1e-10
			}
			logMel[i] = math.Log(energy)
		}
		for c := 0; c < MFCCCount; c++ {
			sums[c] += floats.Dot(dct[c], logMel)
		}
	}

	floats.Scale(1/float64(len(spec.Frames)), sums)
	return sums, nil
}

func hzToMel(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }

func melToHz(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

// melFilterBank builds triangular filters over rfft bins.
func melFilterBank(numFilters, fftSize, sampleRate int, lowHz, highHz float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}

	bins := fftSize/2 + 1
	lowMel, highMel := hzToMel(lowHz), hzToMel(highHz)
	step := (highMel - lowMel) / float64(numFilters+1)

	binPoints := make([]int, numFilters+2)
	for i := range binPoints {
		hz := melToHz(lowMel + float64(i)*step)
		binPoints[i] = min(int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate))), bins-1)
	}

	bank := make([][]float64, numFilters)
	for m := 1; m <= numFilters; m++ {
		filter := make([]float64, bins)
		left, centre, right := binPoints[m-1], binPoints[m], binPoints[m+1]
		for k := left; k < centre; k++ {
			filter[k] = float64(k-left) / float64(centre-left)
		}
		for k := centre; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-centre)
		}
		if centre == left || centre == right {
			// degenerate narrow filter at low resolution, keep the centre bin
			filter[centre] = 1
		}
		bank[m-1] = filter
	}
	return bank
}

// dctMatrix is the orthonormal DCT-II basis, rows = coefficients.
func dctMatrix(numCoefficients, size int) [][]float64 {
	matrix := make([][]float64, numCoefficients)
	for c := range matrix {
		row := make([]float64, size)
		scale := math.Sqrt(2.0 / float64(size))
		if c == 0 {
			scale = math.Sqrt(1.0 / float64(size))
		}
		for n := range row {
			row[n] = scale * math.Cos(math.Pi*float64(c)*(float64(n)+0.5)/float64(size))
		}
		matrix[c] = row
	}
	return matrix
}

func spectralCentroid(magnitude, freqs []float64) float64 {
	total := floats.Sum(magnitude)
	if total <= 0 {
		return 0
	}
	return floats.Dot(magnitude, freqs) / total
}

func spectralRolloff(magnitude, freqs []float64, threshold float64) float64 {
	total := floats.Sum(magnitude)
	if total <= 0 {
		return 0
	}
	target := threshold * total
	var cumulative float64
	for i, m := range magnitude {
		cumulative += m
		if cumulative >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// chromaMapping assigns each rfft bin a pitch class, -1 outside the range.
func chromaMapping(freqs []float64) []int {
	mapping := make([]int, len(freqs))
	for k, hz := range freqs {
		if hz < chromaMinHz || hz > chromaMaxHz {
			mapping[k] = -1
			continue
		}
		midi := 69 + 12*math.Log2(hz/tuningHz)
		pc := int(math.Round(midi)) % ChromaCount
		if pc < 0 {
			pc += ChromaCount
		}
		mapping[k] = pc
	}
	return mapping
}

func meanChroma(spec *Spectrogram) []float64 {
	mapping := chromaMapping(spec.Freqs)
	sums := make([]float64, ChromaCount)
	frame := make([]float64, ChromaCount)

	for _, mag := range spec.Frames {
		for i := range frame {
			frame[i] = 0
		}
		for k, m := range mag {
			if pc := mapping[k]; pc >= 0 {
				frame[pc] += m * m
			}
		}
		if peak := floats.Max(frame); peak > 0 {
			floats.Scale(1/peak, frame)
		}
		floats.Add(sums, frame)
	}

	floats.Scale(1/float64(len(spec.Frames)), sums)
	return sums
}
