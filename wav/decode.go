package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	gowav "github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned for file extensions outside the accepted
// upload set.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrDecode wraps container-level decode failures for otherwise supported
// formats.
var ErrDecode = errors.New("failed to decode audio")

// AudioData is decoded PCM in channel-major layout with samples scaled to
// [-1, 1].
type AudioData struct {
	Channels   [][]float64
	SampleRate int
}

// contentTypes maps accepted upload extensions to the MIME type used when
// storing and streaming them.
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
}

// SupportedExtension reports whether the (dot-prefixed, case-insensitive)
// extension is an accepted upload format.
func SupportedExtension(ext string) bool {
	_, ok := contentTypes[strings.ToLower(ext)]
	return ok
}

// SupportedExtensions returns the accepted upload extensions, dot-prefixed.
func SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac", ".wma"}
}

// ContentTypeForExtension returns the MIME type for an accepted extension,
// falling back to application/octet-stream for anything else.
func ContentTypeForExtension(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Decode parses an uploaded audio payload into PCM. WAV and MP3 decode
// natively; the remaining accepted formats are transcoded through ffmpeg
// first.
func Decode(data []byte, ext string) (*AudioData, error) {
	ext = strings.ToLower(ext)
	switch ext {
	case ".wav":
		return decodeWAV(data)
	case ".mp3":
		return decodeMP3(data)
	case ".flac", ".ogg", ".m4a", ".aac", ".wma":
		wavData, err := convertToWAV(data, ext)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return decodeWAV(wavData)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeWAV(data []byte) (*AudioData, error) {
	decoder := gowav.NewDecoder(bytes.NewReader(data))
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buffer == nil || buffer.Format == nil || len(buffer.Data) == 0 {
		return nil, fmt.Errorf("%w: empty wav stream", ErrDecode)
	}

	numChannels := buffer.Format.NumChannels
	if numChannels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrDecode, numChannels)
	}

	bitDepth := buffer.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := math.Pow(2, float64(bitDepth-1))

	frames := len(buffer.Data) / numChannels
	channels := make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < numChannels; c++ {
			channels[c][f] = float64(buffer.Data[f*numChannels+c]) / scale
		}
	}

	return &AudioData{Channels: channels, SampleRate: buffer.Format.SampleRate}, nil
}

// decodeMP3 decodes MP3 frames. The decoder always emits 16-bit stereo
// little-endian PCM regardless of the source channel layout.
func decodeMP3(data []byte) (*AudioData, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: empty mp3 stream", ErrDecode)
	}

	frames := len(pcm) / 4
	left := make([]float64, frames)
	right := make([]float64, frames)
	for f := 0; f < frames; f++ {
		l := int16(uint16(pcm[f*4]) | uint16(pcm[f*4+1])<<8)
		r := int16(uint16(pcm[f*4+2]) | uint16(pcm[f*4+3])<<8)
		left[f] = float64(l) / 32768
		right[f] = float64(r) / 32768
	}

	return &AudioData{Channels: [][]float64{left, right}, SampleRate: decoder.SampleRate()}, nil
}
