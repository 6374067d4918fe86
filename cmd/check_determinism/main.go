package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"voice-mood/config"
	"voice-mood/voice"
)

// Runs the full pipeline repeatedly on one file and checks every run agrees.
func main() {
	_ = godotenv.Load()
	runs := flag.Int("runs", 5, "Number of analyses to compare")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: check_determinism [-runs N] <audio file>")
	}
	if *runs < 2 {
		*runs = 2
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pipeline := voice.NewPipelineFromConfig(ctx, cfg)
	log.Printf("Testing determinism with: %s (%d runs)\n", path, *runs)

	results := make([]*voice.AnalysisResult, 0, *runs)
	for i := 0; i < *runs; i++ {
		result, err := pipeline.Analyze(ctx, data, filepath.Base(path))
		if err != nil {
			log.Fatalf("Run %d failed: %v", i+1, err)
		}
		results = append(results, result)
		log.Printf("Run %d: pitch=%.10f speed=%.10f emotion=%s mood=%s",
			i+1, result.Pitch, result.Speed, result.Emotion, result.Mood)
	}

	fmt.Println("\n=== Determinism Check ===")
	first := results[0]
	identical := true
	maxDiff := 0.0
	for i, r := range results[1:] {
		pitchDiff := math.Abs(first.Pitch - r.Pitch)
		speedDiff := math.Abs(first.Speed - r.Speed)
		maxDiff = math.Max(maxDiff, math.Max(pitchDiff, speedDiff))

		if pitchDiff != 0 || speedDiff != 0 || first.Emotion != r.Emotion || first.Mood != r.Mood {
			identical = false
			color.Red("Run %d differs from run 1: %+v vs %+v", i+2, *r, *first)
		}
	}

	if identical {
		color.Green("All %d runs produced IDENTICAL results", *runs)
		return
	}
	color.Red("Pipeline is NON-DETERMINISTIC (max numeric diff: %e)", maxDiff)
	os.Exit(1)
}
