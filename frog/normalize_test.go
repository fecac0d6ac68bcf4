package frog

import (
	"math"
	"testing"
)

func TestCollapseChannelsLayouts(t *testing.T) {
	t.Parallel()

	// Channel-major: 2 channels of 10 samples average elementwise.
	channelMajor := [][]float64{
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	mono := CollapseChannels(channelMajor)
	if len(mono) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(mono))
	}
	for i, v := range mono {
		if v != 0.5 {
			t.Fatalf("sample %d: expected 0.5, got %f", i, v)
		}
	}

	// Sample-major: 10 frames of 2 channels average per frame.
	sampleMajor := make([][]float64, 10)
	for i := range sampleMajor {
		sampleMajor[i] = []float64{1, 0}
	}
	mono = CollapseChannels(sampleMajor)
	if len(mono) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(mono))
	}
	for i, v := range mono {
		if v != 0.5 {
			t.Fatalf("sample %d: expected 0.5, got %f", i, v)
		}
	}

	// Mono input is returned as-is.
	single := [][]float64{{0.1, 0.2, 0.3}}
	mono = CollapseChannels(single)
	if len(mono) != 3 || mono[2] != 0.3 {
		t.Fatalf("mono input altered: %v", mono)
	}
}

func TestChannelsFirstHeuristic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rows, cols int
		want       bool
	}{
		{2, 44100, true},
		{8, 100, true},
		{9, 44100, false},
		{2, 8, false},
		{44100, 2, false},
	}
	for _, c := range cases {
		if got := channelsFirst(c.rows, c.cols); got != c.want {
			t.Errorf("channelsFirst(%d, %d) = %v, want %v", c.rows, c.cols, got, c.want)
		}
	}
}

func TestTrimSilenceKeepsLoudRegion(t *testing.T) {
	t.Parallel()

	rate := 22050
	samples := make([]float64, 6*rate)
	for i := 2 * rate; i < 4*rate; i++ {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / float64(rate))
	}

	trimmed := TrimSilence(samples)
	if len(trimmed) >= len(samples) {
		t.Fatalf("expected trimming, got %d of %d samples", len(trimmed), len(samples))
	}
	if rms := rootMeanSquare(trimmed); rms < 0.3 {
		t.Fatalf("trimmed signal lost the loud region (rms=%.4f)", rms)
	}
}

func TestTrimSilenceAllQuietFallsBack(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 4096)
	trimmed := TrimSilence(samples)
	if len(trimmed) != len(samples) {
		t.Fatalf("expected silent signal unchanged, got %d of %d samples", len(trimmed), len(samples))
	}
}

func TestStandardizeDuration(t *testing.T) {
	t.Parallel()

	target := int(TargetDuration * TargetRate)

	exact := make([]float64, target)
	if out := StandardizeDuration(exact, TargetRate); len(out) != target {
		t.Fatalf("exact-length signal changed to %d samples", len(out))
	}

	short := make([]float64, target/2)
	for i := range short {
		short[i] = 1
	}
	out := StandardizeDuration(short, TargetRate)
	if len(out) != target {
		t.Fatalf("expected %d samples after padding, got %d", target, len(out))
	}
	if out[len(short)-1] != 1 || out[len(short)] != 0 {
		t.Fatal("padding should append zeros after the original samples")
	}

	long := make([]float64, target*2)
	if out := StandardizeDuration(long, TargetRate); len(out) != target {
		t.Fatalf("expected %d samples after truncation, got %d", target, len(out))
	}
}

func TestPreEmphasisRecurrence(t *testing.T) {
	t.Parallel()

	in := []float64{1, 0.5, 0.25, -0.5}
	out := PreEmphasis(in, PreEmphasisCoef)

	if out[0] != in[0] {
		t.Fatalf("first sample should pass through, got %f", out[0])
	}
	for i := 1; i < len(in); i++ {
		want := in[i] - PreEmphasisCoef*in[i-1]
		if math.Abs(out[i]-want) > 1e-12 {
			t.Fatalf("sample %d: expected %f, got %f", i, want, out[i])
		}
	}
}

func TestPeakNormalize(t *testing.T) {
	t.Parallel()

	in := []float64{0.1, -0.5, 0.25}
	out := PeakNormalize(in, PeakLevel)

	var peak float64
	for _, v := range out {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-PeakLevel) > 1e-12 {
		t.Fatalf("expected peak %f, got %f", PeakLevel, peak)
	}

	zeros := []float64{0, 0, 0}
	out = PeakNormalize(zeros, PeakLevel)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("zero signal altered at %d: %f", i, v)
		}
	}
}

func TestResampleConvertsRate(t *testing.T) {
	t.Parallel()

	rate := 44100
	tone := make([]float64, 2*rate)
	for i := range tone {
		tone[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}

	out, err := Resample(tone, rate, TargetRate)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}

	// Halving the rate should roughly halve the sample count; allow slack
	// for the resampler's filter delay.
	want := len(tone) * TargetRate / rate
	if diff := len(out) - want; diff < -want/10 || diff > want/10 {
		t.Fatalf("expected about %d samples at %d Hz, got %d", want, TargetRate, len(out))
	}

	same, err := Resample(tone, rate, rate)
	if err != nil {
		t.Fatalf("Resample returned error: %v", err)
	}
	if &same[0] != &tone[0] {
		t.Fatal("equal rates should return the input unchanged")
	}
}

func TestNormalizeWithoutPreEmphasis(t *testing.T) {
	t.Parallel()

	rate := TargetRate
	tone := make([]float64, 4*rate)
	for i := range tone {
		tone[i] = 0.5 * math.Sin(2*math.Pi*200*float64(i)/float64(rate))
	}

	filtered, err := Normalize([][]float64{tone}, rate, true)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	plain, err := Normalize([][]float64{tone}, rate, false)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	// Without pre-emphasis the tone is only scaled to the peak level, so
	// each sample is the input times PeakLevel over the input peak.
	var peak float64
	for _, v := range tone {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	scale := PeakLevel / peak
	for i := 0; i < len(tone); i++ {
		if math.Abs(plain[i]-tone[i]*scale) > 1e-6 {
			t.Fatalf("sample %d: expected %f, got %f", i, tone[i]*scale, plain[i])
		}
	}

	var maxDiff float64
	for i := range plain {
		if d := math.Abs(plain[i] - filtered[i]); d > maxDiff {
			maxDiff = d
		}
	}
	if maxDiff < 1e-6 {
		t.Fatal("filtered and unfiltered outputs should differ")
	}
}

func TestNormalizeSilentClipYieldsStandardLength(t *testing.T) {
	t.Parallel()

	// Three seconds of digital silence at 16 kHz must come out as exactly
	// ten seconds of zeros at the target rate.
	silent := [][]float64{make([]float64, 3*16000)}
	out, err := Normalize(silent, 16000, true)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	want := int(TargetDuration * TargetRate)
	if len(out) != want {
		t.Fatalf("expected %d samples, got %d", want, len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("expected all-zero output, found %f at %d", v, i)
		}
	}
}

func TestNormalizeOutputLengthForToneInput(t *testing.T) {
	t.Parallel()

	rate := 22050
	tone := make([]float64, 4*rate)
	for i := range tone {
		tone[i] = 0.5 * math.Sin(2*math.Pi*800*float64(i)/float64(rate))
	}

	out, err := Normalize([][]float64{tone}, rate, true)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if want := int(TargetDuration * TargetRate); len(out) != want {
		t.Fatalf("expected %d samples, got %d", want, len(out))
	}

	var peak float64
	for _, v := range out {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-PeakLevel) > 1e-9 {
		t.Fatalf("expected peak %f after normalization, got %f", PeakLevel, peak)
	}
}
