package wavio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// ErrTranscoderUnavailable indicates neither ffmpeg nor avconv is installed.
var ErrTranscoderUnavailable = errors.New("wavio: no transcoder found, install ffmpeg or avconv")

// transcoderNames lists the supported conversion programs in preference order.
var transcoderNames = []string{"ffmpeg", "avconv"}

// lookPath is a seam for tests.
var lookPath = exec.LookPath

// LookupTranscoder returns the path of the first available conversion
// program, or ErrTranscoderUnavailable.
func LookupTranscoder() (string, error) {
	for _, name := range transcoderNames {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrTranscoderUnavailable
}

// Transcode converts any input audio file into a 16-bit PCM WAV at
// outputPath. A positive sampleRate resamples; zero keeps the source rate.
func Transcode(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	bin, err := LookupTranscoder()
	if err != nil {
		return err
	}

	args := []string{"-y", "-v", "quiet", "-i", inputPath}
	if sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wavio: transcode %s: %w (%s)", inputPath, err, out)
	}

	return nil
}
