package frog

// BestWindow slides a window of the given duration across the signal in one
// second hops and returns the window with the highest RMS energy. When two
// windows tie, the earlier one wins. Signals no longer than the window pass
// through unchanged.
func BestWindow(samples []float64, sampleRate int, duration float64) []float64 {
	windowLength := int(duration * float64(sampleRate))
	if windowLength <= 0 || len(samples) <= windowLength {
		return samples
	}

	hop := sampleRate
	bestStart := 0
	bestRMS := rootMeanSquare(samples[:windowLength])
	for start := hop; start+windowLength <= len(samples); start += hop {
		rms := rootMeanSquare(samples[start : start+windowLength])
		if rms > bestRMS {
			bestRMS = rms
			bestStart = start
		}
	}

	return samples[bestStart : bestStart+windowLength]
}
