package voice

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	DefaultFrameSize = 2048
	DefaultHopSize   = 512
)

// Spectrogram holds short-time magnitude spectra of a waveform.
type Spectrogram struct {
	Frames     [][]float64 // [frame][bin], bins = FrameSize/2+1
	Freqs      []float64   // centre frequency of each bin in Hz
	FrameSize  int
	HopSize    int
	SampleRate int
}

// ComputeSpectrogram runs a Hann-windowed STFT. The signal is zero padded by
// half a frame on both sides so the first frame is centred on sample zero.
func ComputeSpectrogram(ctx context.Context, samples []float64, sampleRate, frameSize, hopSize int) (*Spectrogram, error) {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if hopSize <= 0 {
		hopSize = DefaultHopSize
	}

	pad := frameSize / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	frameCount := 1
	if len(padded) > frameSize {
		frameCount += (len(padded) - frameSize) / hopSize
	}

	window := hannWindow(frameSize)
	bins := frameSize/2 + 1
	frames := make([][]float64, frameCount)
	buffer := make([]float64, frameSize)

	for f := 0; f < frameCount; f++ {
		if f%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		start := f * hopSize
		for i := range buffer {
			idx := start + i
			if idx < len(padded) {
				buffer[i] = padded[idx] * window[i]
			} else {
				buffer[i] = 0
			}
		}

		spectrum := fft.FFTReal(buffer)
		magnitude := make([]float64, bins)
		for k := 0; k < bins; k++ {
			magnitude[k] = cmplx.Abs(spectrum[k])
		}
		frames[f] = magnitude
	}

	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(frameSize)
	}

	return &Spectrogram{
		Frames:     frames,
		Freqs:      freqs,
		FrameSize:  frameSize,
		HopSize:    hopSize,
		SampleRate: sampleRate,
	}, nil
}

func hannWindow(size int) []float64 {
	window := make([]float64, size)
	if size == 1 {
		window[0] = 1
		return window
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}

// frameSignal slices samples into centred frames matching the STFT layout.
func frameSignal(samples []float64, frameSize, hopSize int) [][]float64 {
	pad := frameSize / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	frameCount := 1
	if len(padded) > frameSize {
		frameCount += (len(padded) - frameSize) / hopSize
	}

	frames := make([][]float64, frameCount)
	for f := range frames {
		start := f * hopSize
		end := start + frameSize
		if end > len(padded) {
			end = len(padded)
		}
		frames[f] = padded[start:end]
	}
	return frames
}
