package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"voice-mood/config"
	"voice-mood/voice"
)

// Explains why a recording was given its emotion: the extracted features,
// their normalised values and the closest prototypes of the model.
func main() {
	_ = godotenv.Load()
	neighbors := flag.Int("neighbors", 0, "Prototypes to list (0 uses the model's k)")
	asJSON := flag.Bool("json", false, "Print the explanation as JSON")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: explain_analysis [-neighbors N] [-json] <audio file>")
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

	exp, err := pipeline.Explain(ctx, data, filepath.Base(path), *neighbors)
	if err != nil {
		log.Fatalf("explain %s: %v", path, err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(exp); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	printExplanation(filepath.Base(path), exp)
}

func printExplanation(name string, exp *voice.Explanation) {
	fmt.Printf("=== Explaining analysis for: %s ===\n\n", name)
	fmt.Printf("Audio: %.2fs @ %d Hz\n", exp.Duration, exp.SampleRate)
	fmt.Printf("Pitch: %.2f Hz   Speed: %.2f BPM\n\n", exp.Pitch, exp.Speed)

	fmt.Println("Features (raw -> normalised):")
	for i, f := range exp.Features {
		line := fmt.Sprintf("  %2d. %-18s %12.4f -> %8.4f", i+1, f.Name, f.Raw, f.Normalized)
		// standardised values beyond 3 sigma are unusual for the training data
		if f.Normalized > 3 || f.Normalized < -3 {
			color.Yellow("%s", line)
		} else {
			fmt.Println(line)
		}
	}
	fmt.Println()

	if exp.Degraded {
		color.Red("Emotion model unavailable: emotion defaults to %s", voice.NeutralLabel)
		fmt.Printf("Mood: %s\n", exp.Mood)
		return
	}

	color.Green("Emotion: %s   Mood: %s", exp.Emotion, exp.Mood)
	if len(exp.Neighbors) == 0 {
		fmt.Println("(model is not prototype based, no neighbours to show)")
		return
	}

	fmt.Println("\nClosest prototypes:")
	total := 0.0
	for _, n := range exp.Neighbors {
		total += n.Weight
	}
	for i, n := range exp.Neighbors {
		share := 0.0
		if total > 0 {
			share = n.Weight / total * 100
		}
		line := fmt.Sprintf("  %d. %-14s %-8s distance=%.4f vote=%.1f%%", i+1, n.ID, n.Label, n.Distance, share)
		if n.Label == exp.Emotion {
			color.Green("%s", line)
		} else {
			fmt.Println(line)
		}
	}
}
