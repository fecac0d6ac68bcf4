package frog

// Waveform conditioning applied before feature extraction. Every audio
// input, whatever its container or channel layout, passes through the same
// sequence: collapse to mono, trim leading and trailing silence, select the
// loudest window, resample to the target rate, standardize the duration,
// apply pre-emphasis, and normalize the peak level. Running the identical
// chain at training and serving time is what keeps the two feature spaces
// aligned.

import (
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	// TargetRate is the sample rate every signal is resampled to before
	// feature extraction.
	TargetRate = 22050

	// TargetDuration is the standardized clip length in seconds.
	TargetDuration = 10.0

	// PeakLevel is the post-normalization peak amplitude.
	PeakLevel = 0.98

	// PreEmphasisCoef weights the previous sample in the pre-emphasis
	// first difference.
	PreEmphasisCoef = 0.97

	// TrimTopDB is the silence threshold relative to the peak frame RMS.
	TrimTopDB = 30.0

	trimFrameLength = 2048
	trimHopLength   = 512
)

// channelsFirst reports whether a two-dimensional sample layout is
// channel-major. Real multichannel recordings have few channels and many
// samples per channel, so a narrow first axis paired with a wide second
// axis is read as (channels, samples).
func channelsFirst(rows, cols int) bool {
	return rows <= 8 && cols > 8
}

// CollapseChannels reduces a possibly multichannel signal to mono by
// averaging across channels. A single row passes through unchanged.
func CollapseChannels(channels [][]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}

	if !channelsFirst(len(channels), len(channels[0])) {
		// Layout is (samples, channels): average each row.
		mono := make([]float64, len(channels))
		for i, frame := range channels {
			mono[i] = mean(frame)
		}
		return mono
	}

	length := len(channels[0])
	for _, ch := range channels {
		if len(ch) < length {
			length = len(ch)
		}
	}

	mono := make([]float64, length)
	for _, ch := range channels {
		for i := 0; i < length; i++ {
			mono[i] += ch[i]
		}
	}
	scale := 1 / float64(len(channels))
	for i := range mono {
		mono[i] *= scale
	}
	return mono
}

// TrimSilence removes leading and trailing regions whose frame RMS falls
// more than TrimTopDB below the loudest frame. If every frame is below the
// threshold the input is returned untouched.
func TrimSilence(samples []float64) []float64 {
	if len(samples) == 0 {
		return samples
	}

	count := 1
	if len(samples) > trimFrameLength {
		count = 1 + (len(samples)-trimFrameLength)/trimHopLength
	}

	rms := make([]float64, count)
	var peak float64
	for f := 0; f < count; f++ {
		start := f * trimHopLength
		end := start + trimFrameLength
		if end > len(samples) {
			end = len(samples)
		}
		rms[f] = rootMeanSquare(samples[start:end])
		if rms[f] > peak {
			peak = rms[f]
		}
	}

	if peak == 0 {
		return samples
	}

	threshold := peak * math.Pow(10, -TrimTopDB/20)
	first, last := -1, -1
	for f, v := range rms {
		if v >= threshold {
			if first < 0 {
				first = f
			}
			last = f
		}
	}
	if first < 0 {
		return samples
	}

	start := first * trimHopLength
	end := last*trimHopLength + trimFrameLength
	if end > len(samples) {
		end = len(samples)
	}
	return samples[start:end]
}

// Resample converts a mono signal from one sample rate to another. Equal
// rates return the input unchanged.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}

	return resampler.Process(samples)
}

// StandardizeDuration pads with trailing zeros or truncates so the signal
// is exactly TargetDuration seconds at the given rate.
func StandardizeDuration(samples []float64, sampleRate int) []float64 {
	target := int(TargetDuration * float64(sampleRate))
	if len(samples) == target {
		return samples
	}
	if len(samples) > target {
		return samples[:target]
	}
	padded := make([]float64, target)
	copy(padded, samples)
	return padded
}

// PreEmphasis applies the first-order high-pass difference
// y[n] = x[n] - coef*x[n-1], keeping the first sample unchanged.
func PreEmphasis(samples []float64, coef float64) []float64 {
	if len(samples) == 0 {
		return samples
	}
	out := make([]float64, len(samples))
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - coef*samples[i-1]
	}
	return out
}

// PeakNormalize scales the signal so its largest absolute sample equals
// level. An all-zero signal is returned unchanged.
func PeakNormalize(samples []float64, level float64) []float64 {
	var peak float64
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}

	out := make([]float64, len(samples))
	scale := level / peak
	for i, v := range samples {
		out[i] = v * scale
	}
	return out
}

// Normalize runs the full conditioning chain on decoded audio and returns
// a mono signal of exactly TargetDuration seconds at TargetRate. Pre-emphasis
// is skipped when applyPreEmphasis is false, for tooling that needs the
// unfiltered variant.
func Normalize(channels [][]float64, sampleRate int, applyPreEmphasis bool) ([]float64, error) {
	mono := CollapseChannels(channels)
	mono = TrimSilence(mono)
	mono = BestWindow(mono, sampleRate, TargetDuration)

	mono, err := Resample(mono, sampleRate, TargetRate)
	if err != nil {
		return nil, err
	}

	mono = StandardizeDuration(mono, TargetRate)
	if applyPreEmphasis {
		mono = PreEmphasis(mono, PreEmphasisCoef)
	}
	mono = PeakNormalize(mono, PeakLevel)
	return mono, nil
}
