package frog

import (
	"errors"
	"fmt"
	"math"
)

// ErrFeatureMismatch is returned when a client-supplied feature map does not
// line up with the canonical feature order.
var ErrFeatureMismatch = errors.New("feature mismatch")

const (
	numMFCC        = 13
	rolloffPercent = 0.85
)

// mfccStdIndices lists the one-indexed MFCC coefficients whose standard
// deviation made the final feature set.
var mfccStdIndices = []int{1, 3, 4, 5, 7, 8, 12}

// FeatureNames returns the 26 summary feature names in no particular order.
// The canonical ordering for model input is a deployment artifact and is
// loaded separately.
func FeatureNames() []string {
	names := []string{"centroid_mean", "bandwidth_mean", "rolloff_mean"}
	for i := 1; i <= numMFCC; i++ {
		names = append(names, fmt.Sprintf("mfcc%d_mean", i))
	}
	for _, i := range mfccStdIndices {
		names = append(names, fmt.Sprintf("mfcc%d_std", i))
	}
	return append(names, "zcr_mean", "rms_mean", "rms_std")
}

// ExtractFeatures computes the 26 summary descriptors of a normalized mono
// signal. Per-frame measurements are reduced to their mean (and for a subset
// of MFCC coefficients, their standard deviation) across all frames.
func ExtractFeatures(samples []float64, sampleRate int) map[string]float64 {
	frames := magnitudeFrames(samples)
	freqs := binFrequencies(sampleRate)
	filters := melFilterBank(sampleRate)

	count := len(frames)
	centroids := make([]float64, count)
	bandwidths := make([]float64, count)
	rolloffs := make([]float64, count)
	mfccFrames := make([][]float64, count)

	for f, magnitudes := range frames {
		centroids[f] = spectralCentroid(magnitudes, freqs)
		bandwidths[f] = spectralBandwidth(magnitudes, freqs, centroids[f])
		rolloffs[f] = spectralRolloff(magnitudes, freqs)
		mfccFrames[f] = mfccCoefficients(magnitudes, filters)
	}

	rmsValues := make([]float64, count)
	zcrValues := make([]float64, count)
	for f := 0; f < count; f++ {
		start := f * hopLength
		end := start + frameLength
		if end > len(samples) {
			end = len(samples)
		}
		if start >= end {
			continue
		}
		rmsValues[f] = rootMeanSquare(samples[start:end])
		zcrValues[f] = zeroCrossingRate(samples[start:end])
	}

	features := map[string]float64{
		"centroid_mean":  mean(centroids),
		"bandwidth_mean": mean(bandwidths),
		"rolloff_mean":   mean(rolloffs),
		"zcr_mean":       mean(zcrValues),
		"rms_mean":       mean(rmsValues),
		"rms_std":        stddev(rmsValues),
	}

	coefficient := make([]float64, count)
	for i := 0; i < numMFCC; i++ {
		for f := range mfccFrames {
			coefficient[f] = mfccFrames[f][i]
		}
		features[fmt.Sprintf("mfcc%d_mean", i+1)] = mean(coefficient)
	}
	for _, i := range mfccStdIndices {
		for f := range mfccFrames {
			coefficient[f] = mfccFrames[f][i-1]
		}
		features[fmt.Sprintf("mfcc%d_std", i)] = stddev(coefficient)
	}

	return features
}

// OrderFeatures flattens a feature map into a vector following the given
// canonical order. Missing or surplus names yield ErrFeatureMismatch.
func OrderFeatures(features map[string]float64, order []string) ([]float64, error) {
	if len(features) != len(order) {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrFeatureMismatch, len(order), len(features))
	}

	vector := make([]float64, len(order))
	for i, name := range order {
		value, ok := features[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing feature %q", ErrFeatureMismatch, name)
		}
		vector[i] = value
	}
	return vector, nil
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

func spectralCentroid(magnitudes, freqs []float64) float64 {
	var weightedSum, magnitudeSum float64
	for i, m := range magnitudes {
		weightedSum += freqs[i] * m
		magnitudeSum += m
	}
	if magnitudeSum == 0 {
		return 0
	}
	return weightedSum / magnitudeSum
}

func spectralBandwidth(magnitudes, freqs []float64, centroid float64) float64 {
	var weightedSum, magnitudeSum float64
	for i, m := range magnitudes {
		diff := freqs[i] - centroid
		weightedSum += diff * diff * m
		magnitudeSum += m
	}
	if magnitudeSum == 0 {
		return 0
	}
	return math.Sqrt(weightedSum / magnitudeSum)
}

// spectralRolloff finds the frequency below which rolloffPercent of the
// spectral energy is concentrated.
func spectralRolloff(magnitudes, freqs []float64) float64 {
	var total float64
	for _, m := range magnitudes {
		total += m
	}
	if total == 0 {
		return 0
	}

	threshold := rolloffPercent * total
	var cumulative float64
	for i, m := range magnitudes {
		cumulative += m
		if cumulative >= threshold {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

// mfccCoefficients converts one magnitude frame into its first numMFCC mel
// cepstral coefficients: power spectrum, mel filter bank, log compression
// in decibels, then an orthonormal DCT-II.
func mfccCoefficients(magnitudes []float64, filters [][]float64) []float64 {
	power := make([]float64, len(magnitudes))
	for i, m := range magnitudes {
		power[i] = m * m
	}

	logEnergies := make([]float64, len(filters))
	for m, filter := range filters {
		var energy float64
		for i, w := range filter {
			if w != 0 {
				energy += w * power[i]
			}
		}
		if energy < 1e-10 {
			energy = 1e-10
		}
		logEnergies[m] = 10 * math.Log10(energy)
	}

	return dctII(logEnergies, numMFCC)
}
