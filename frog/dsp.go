package frog

// Short-time spectral analysis primitives.
//
// Feature extraction operates on overlapping analysis frames rather than the
// whole buffer: each frame is Hann-windowed, transformed with a radix-2
// Cooley-Tukey FFT, and reduced to a magnitude (or power) spectrum. The
// per-frame descriptors are then averaged into the summary statistics the
// classifier consumes. MFCCs additionally pass the power spectrum through a
// triangular mel filter bank and an orthonormal DCT-II.

import (
	"math"
	"math/cmplx"
)

const (
	frameLength = 2048
	hopLength   = 512
	melBands    = 128
)

// FFT converts a real-valued signal into its complex frequency spectrum.
// The input length must be a power of two.
func FFT(input []float64) []complex128 {
	complexArray := make([]complex128, len(input))
	for i, v := range input {
		complexArray[i] = complex(v, 0)
	}
	return recursiveFFT(complexArray)
}

func recursiveFFT(complexArray []complex128) []complex128 {
	N := len(complexArray)
	if N <= 1 {
		return complexArray
	}

	even := make([]complex128, N/2)
	odd := make([]complex128, N/2)
	for i := 0; i < N/2; i++ {
		even[i] = complexArray[2*i]
		odd[i] = complexArray[2*i+1]
	}

	even = recursiveFFT(even)
	odd = recursiveFFT(odd)

	fftResult := make([]complex128, N)
	for k := 0; k < N/2; k++ {
		t := complex(math.Cos(-2*math.Pi*float64(k)/float64(N)), math.Sin(-2*math.Pi*float64(k)/float64(N)))
		fftResult[k] = even[k] + t*odd[k]
		fftResult[k+N/2] = even[k] - t*odd[k]
	}

	return fftResult
}

func hannWindow(length int) []float64 {
	window := make([]float64, length)
	if length <= 1 {
		for i := range window {
			window[i] = 1
		}
		return window
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos((2*math.Pi*float64(i))/float64(length-1)))
	}
	return window
}

// frameCount returns the number of full analysis frames in a signal. Signals
// shorter than one frame yield a single (zero-padded) frame.
func frameCount(sampleCount int) int {
	if sampleCount <= frameLength {
		return 1
	}
	return 1 + (sampleCount-frameLength)/hopLength
}

// magnitudeFrames computes the Hann-windowed magnitude spectrum of every
// analysis frame. Each row holds frameLength/2 frequency bins.
func magnitudeFrames(samples []float64) [][]float64 {
	window := hannWindow(frameLength)
	count := frameCount(len(samples))
	frames := make([][]float64, count)

	buffer := make([]float64, frameLength)
	for f := 0; f < count; f++ {
		start := f * hopLength
		for i := 0; i < frameLength; i++ {
			if start+i < len(samples) {
				buffer[i] = samples[start+i] * window[i]
			} else {
				buffer[i] = 0
			}
		}

		spectrum := FFT(buffer)
		bins := make([]float64, frameLength/2)
		for i := range bins {
			bins[i] = cmplx.Abs(spectrum[i])
		}
		frames[f] = bins
	}

	return frames
}

// binFrequencies returns the centre frequency of every spectrum bin.
func binFrequencies(sampleRate int) []float64 {
	freqs := make([]float64, frameLength/2)
	for i := range freqs {
		freqs[i] = float64(i) * float64(sampleRate) / float64(frameLength)
	}
	return freqs
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank builds triangular filters spaced evenly on the mel scale
// between 0 Hz and the Nyquist frequency. Each filter is a weight vector
// over the frameLength/2 spectrum bins.
func melFilterBank(sampleRate int) [][]float64 {
	binCount := frameLength / 2
	maxMel := hzToMel(float64(sampleRate) / 2)

	// band edges: melBands+2 points including both endpoints
	edges := make([]float64, melBands+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(melBands+1))
	}

	freqs := binFrequencies(sampleRate)
	filters := make([][]float64, melBands)
	for m := 0; m < melBands; m++ {
		lower, centre, upper := edges[m], edges[m+1], edges[m+2]
		filter := make([]float64, binCount)
		for i, f := range freqs {
			switch {
			case f <= lower || f >= upper:
				// outside the triangle
			case f <= centre:
				if centre > lower {
					filter[i] = (f - lower) / (centre - lower)
				}
			default:
				if upper > centre {
					filter[i] = (upper - f) / (upper - centre)
				}
			}
		}
		filters[m] = filter
	}

	return filters
}

// dctII applies an orthonormal DCT-II and keeps the first numCoefficients
// outputs.
func dctII(input []float64, numCoefficients int) []float64 {
	n := len(input)
	if numCoefficients > n {
		numCoefficients = n
	}

	out := make([]float64, numCoefficients)
	scale0 := math.Sqrt(1 / float64(n))
	scale := math.Sqrt(2 / float64(n))
	for k := 0; k < numCoefficients; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += input[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		if k == 0 {
			out[k] = sum * scale0
		} else {
			out[k] = sum * scale
		}
	}

	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}
