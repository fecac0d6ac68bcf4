package wav

import (
	"bytes"
	"fmt"
	"os/exec"
)

// CheckFFmpegAvailable verifies that the ffmpeg binary is on PATH. Formats
// without a native decoder depend on it.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}

// convertToWAV transcodes a compressed payload to 16-bit PCM WAV via ffmpeg,
// piping the audio through stdin and stdout so nothing touches disk.
func convertToWAV(data []byte, ext string) ([]byte, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return nil, err
	}

	// ffmpeg infers most formats from the stream itself, but stdin has no
	// filename to sniff an extension from, so pass the demuxer explicitly.
	format := map[string]string{
		".flac": "flac",
		".ogg":  "ogg",
		".m4a":  "mp4",
		".aac":  "aac",
		".wma":  "asf",
	}[ext]
	if format == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", "pipe:0",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %v (%s)", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return out.Bytes(), nil
}
