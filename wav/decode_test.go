package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// buildWAV assembles a minimal 16-bit PCM RIFF container around interleaved
// samples in [-1, 1].
func buildWAV(t *testing.T, channels int, sampleRate int, interleaved []float64) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range interleaved {
		v := int16(math.Round(s * 32767))
		binary.Write(&data, binary.LittleEndian, v)
	}

	var buf bytes.Buffer
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	return buf.Bytes()
}

func TestDecodeWAVMono(t *testing.T) {
	t.Parallel()

	rate := 8000
	samples := make([]float64, rate)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}

	audio, err := Decode(buildWAV(t, 1, rate, samples), ".wav")
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if audio.SampleRate != rate {
		t.Fatalf("expected sample rate %d, got %d", rate, audio.SampleRate)
	}
	if len(audio.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(audio.Channels))
	}
	if len(audio.Channels[0]) != rate {
		t.Fatalf("expected %d samples, got %d", rate, len(audio.Channels[0]))
	}

	for i := 0; i < 100; i++ {
		if math.Abs(audio.Channels[0][i]-samples[i]) > 1e-3 {
			t.Fatalf("sample %d: expected %f, got %f", i, samples[i], audio.Channels[0][i])
		}
	}
}

func TestDecodeWAVStereoDeinterleaves(t *testing.T) {
	t.Parallel()

	// Left channel constant positive, right channel constant negative.
	frames := 1000
	interleaved := make([]float64, frames*2)
	for f := 0; f < frames; f++ {
		interleaved[f*2] = 0.5
		interleaved[f*2+1] = -0.5
	}

	audio, err := Decode(buildWAV(t, 2, 8000, interleaved), ".wav")
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(audio.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(audio.Channels))
	}
	for f := 0; f < frames; f++ {
		if audio.Channels[0][f] < 0.4 || audio.Channels[1][f] > -0.4 {
			t.Fatalf("frame %d not deinterleaved: left=%f right=%f",
				f, audio.Channels[0][f], audio.Channels[1][f])
		}
	}
}

func TestDecodeRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte{0x42, 0x4d}, ".bmp")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeRejectsGarbageWAV(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("not a riff container"), ".wav")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestSupportedExtensions(t *testing.T) {
	t.Parallel()

	for _, ext := range SupportedExtensions() {
		if !SupportedExtension(ext) {
			t.Errorf("%s should be supported", ext)
		}
	}
	if SupportedExtension(".bmp") {
		t.Error(".bmp should not be supported")
	}
	if !SupportedExtension(".WAV") {
		t.Error("extension check should be case-insensitive")
	}

	if ct := ContentTypeForExtension(".mp3"); ct != "audio/mpeg" {
		t.Errorf("expected audio/mpeg for .mp3, got %s", ct)
	}
	if ct := ContentTypeForExtension(".xyz"); ct != "application/octet-stream" {
		t.Errorf("expected fallback content type, got %s", ct)
	}
}
