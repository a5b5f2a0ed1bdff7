// Command autoconv2x convolves an audio file with itself, producing an
// output roughly twice the input's length with self-similar timbral effects.
//
// Usage:
//
//	autoconv2x [flags] -o output.wav input
//
// The input may be any format the installed ffmpeg/avconv can decode.
//
// Examples:
//
//	autoconv2x -o out.wav melody.flac
//	autoconv2x -k -o out.wav melody.flac
//	autoconv2x -k -l 2 -b 30 -o out.wav melody.flac
//	autoconv2x -K -o out.wav melody.flac
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ajjackson/autoconv2x/autoconv"
	"github.com/ajjackson/autoconv2x/wavio"
)

func main() {
	output := flag.String("o", "", "output WAV file (required)")
	keepEnvelope := flag.Bool("k", false, "try to preserve the overall spectrum envelope")
	bothModes := flag.Bool("K", false, "write two outputs: one without envelope keeping (_k1) and one with (_k2)")
	blockSeconds := flag.Float64("b", 60.0, "block size in seconds")
	limitBlocks := flag.Int("l", 0, "limit mixing to this many adjacent blocks (0 = unlimited)")
	sampleRate := flag.Int("r", 0, "resample the input to this rate (0 = unchanged)")
	tempDir := flag.String("d", "", "directory for temporary files (default: ephemeral)")
	workers := flag.Int("j", 0, "mixing worker count (0 = all CPUs)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: autoconv2x [flags] -o output.wav input\n\n")
		fmt.Fprintf(os.Stderr, "Applies a block-wise autoconvolution to an audio file.\n")
		fmt.Fprintf(os.Stderr, "Requires ffmpeg or avconv for decoding and resampling.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  autoconv2x -o out.wav melody.flac\n")
		fmt.Fprintf(os.Stderr, "  autoconv2x -k -l 2 -o out.wav melody.flac\n")
	}
	flag.Parse()

	if flag.NArg() != 1 || *output == "" {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	if _, err := os.Stat(input); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open input file: %s\n", input)
		os.Exit(1)
	}
	if _, err := wavio.LookupTranscoder(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := autoconv.Config{
		BlockSeconds: *blockSeconds,
		LimitBlocks:  *limitBlocks,
		SampleRate:   *sampleRate,
		TempDir:      *tempDir,
		Workers:      *workers,
		Progress:     printProgress,
	}
	if *keepEnvelope {
		cfg.Mode = autoconv.ModeKeep
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Input file: %s\n", input)

	if *bothModes {
		fmt.Println("Making two output files (without/with envelope keeping)")
		stats, err := autoconv.ProcessModes(ctx, input, *output, cfg)
		for _, st := range stats {
			report(st)
		}
		if err != nil {
			fail(err)
		}
		for _, mode := range []autoconv.EnvelopeMode{autoconv.ModeAlign, autoconv.ModeKeep} {
			fmt.Printf("Output was written in: %s\n", autoconv.ModeOutputPath(*output, mode))
		}
		return
	}

	fmt.Printf("Output file: %s\n", *output)
	if cfg.Mode == autoconv.ModeKeep {
		fmt.Println("Spectrum envelope preservation: enabled")
	}

	stats, err := autoconv.Process(ctx, input, *output, cfg)
	if err != nil {
		fail(err)
	}
	report(stats)
	fmt.Printf("Output was written in: %s\n", *output)
}

func printProgress(stage autoconv.Stage, done, total int) {
	fmt.Printf("\r%s %d/%d ", stage, done, total)
	if done == total {
		fmt.Println()
	}
}

func report(st *autoconv.Stats) {
	fmt.Printf("Input block size (samples): %d\n", st.InputBlockSize)
	fmt.Printf("Used %d blocks, %d mix groups\n", st.Blocks, st.Groups)
	fmt.Printf("%.3f GB of temporary space used\n", float64(st.TempBytes)/1e9)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
