package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"voice-mood/config"
	"voice-mood/voice"
)

// BatchConfig holds command line options
type BatchConfig struct {
	InputDir   string
	OutputCSV  string
	OutputJSON string
	Workers    int
	Verbose    bool
}

// FileResult is the outcome of analysing one file
type FileResult struct {
	Filename       string  `json:"filename"`
	Pitch          float64 `json:"pitch"`
	Speed          float64 `json:"speed"`
	Emotion        string  `json:"emotion"`
	Mood           string  `json:"mood"`
	Error          string  `json:"error,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	ProcessingTime float64 `json:"processing_time_ms"`
}

// BatchReport contains all results
type BatchReport struct {
	Timestamp     time.Time    `json:"timestamp"`
	InputDir      string       `json:"input_dir"`
	Degraded      bool         `json:"degraded"`
	TotalFiles    int          `json:"total_files"`
	Failed        int          `json:"failed"`
	Results       []FileResult `json:"results"`
	AvgProcessing float64      `json:"avg_processing_ms"`
}

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".3gp": true,
	".mp4": true, ".ogg": true, ".oga": true, ".opus": true, ".webm": true, ".flac": true,
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Batch Voice Analysis ===")
	log.Printf("Input: %s\n", opts.InputDir)
	log.Printf("Workers: %d\n", opts.Workers)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}

	ctx := context.Background()
	pipeline := voice.NewPipelineFromConfig(ctx, cfg)
	if pipeline.Artifacts().Degraded() {
		color.Yellow("Emotion model unavailable: every emotion will be %s", voice.NeutralLabel)
	}

	files, err := collectAudioFiles(opts.InputDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("ERROR: No audio files found in %s", opts.InputDir)
	}
	log.Printf("Found %d audio files\n", len(files))

	report, err := runBatch(ctx, pipeline, files, opts)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	report.InputDir = opts.InputDir

	printReport(report, opts)

	if opts.OutputCSV != "" {
		if err := saveCSV(report, opts.OutputCSV); err != nil {
			log.Printf("WARNING: Failed to save CSV: %v\n", err)
		} else {
			log.Printf("CSV results saved to: %s\n", opts.OutputCSV)
		}
	}
	if opts.OutputJSON != "" {
		if err := saveJSON(report, opts.OutputJSON); err != nil {
			log.Printf("WARNING: Failed to save JSON: %v\n", err)
		} else {
			log.Printf("JSON results saved to: %s\n", opts.OutputJSON)
		}
	}
}

func parseFlags() BatchConfig {
	opts := BatchConfig{}

	flag.StringVar(&opts.InputDir, "dir", "samples", "Directory containing audio files")
	flag.StringVar(&opts.OutputCSV, "output-csv", "batch_results.csv", "Path to save results as CSV")
	flag.StringVar(&opts.OutputJSON, "output-json", "batch_results.json", "Path to save results as JSON")
	flag.IntVar(&opts.Workers, "workers", runtime.NumCPU(), "Number of files analysed concurrently")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Print every result")
	flag.Parse()

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return opts
}

func collectAudioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if audioExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort for consistent ordering
	sort.Strings(files)
	return files, nil
}

// runBatch analyses files concurrently. Per-file failures are recorded in
// the report; only context cancellation aborts the batch.
func runBatch(ctx context.Context, pipeline *voice.Pipeline, files []string, opts BatchConfig) (BatchReport, error) {
	report := BatchReport{
		Timestamp:  time.Now(),
		Degraded:   pipeline.Artifacts().Degraded(),
		TotalFiles: len(files),
		Results:    make([]FileResult, len(files)),
	}

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Analysing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			report.Results[i] = analyzeFile(gctx, pipeline, path)
			bar.EwmaIncrement(time.Since(started))
			return nil
		})
	}

	err := g.Wait()
	p.Wait()
	if err != nil {
		return report, err
	}

	total := 0.0
	for _, r := range report.Results {
		if r.Error != "" {
			report.Failed++
		}
		total += r.ProcessingTime
	}
	report.AvgProcessing = total / float64(len(files))
	return report, nil
}

func analyzeFile(ctx context.Context, pipeline *voice.Pipeline, path string) FileResult {
	started := time.Now()
	res := FileResult{Filename: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = voice.KindInternal.String()
		return res
	}

	result, err := pipeline.Analyze(ctx, data, filepath.Base(path))
	res.ProcessingTime = time.Since(started).Seconds() * 1000
	if err != nil {
		res.Error = voice.PublicMessage(err)
		res.ErrorKind = voice.KindOf(err).String()
		return res
	}

	res.Pitch = result.Pitch
	res.Speed = result.Speed
	res.Emotion = result.Emotion
	res.Mood = result.Mood
	return res
}

func printReport(report BatchReport, opts BatchConfig) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	color.New(color.Bold).Println("BATCH RESULTS")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("Total files: %d\n", report.TotalFiles)
	if report.Failed > 0 {
		color.Red("Failed: %d", report.Failed)
	} else {
		color.Green("Failed: 0")
	}
	fmt.Printf("Average processing time: %.2f ms/file\n\n", report.AvgProcessing)

	moodCount := make(map[string]int)
	for _, r := range report.Results {
		if r.Error == "" {
			moodCount[r.Mood]++
		}
	}

	type kv struct {
		Key   string
		Value int
	}
	var sorted []kv
	for k, v := range moodCount {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].Key < sorted[j].Key
	})

	fmt.Println("Mood distribution:")
	fmt.Println(strings.Repeat("-", 80))
	for _, kv := range sorted {
		percentage := float64(kv.Value) / float64(report.TotalFiles) * 100
		fmt.Printf("  %-20s: %3d files (%.1f%%)\n", kv.Key, kv.Value, percentage)
	}
	fmt.Println()

	if opts.Verbose || report.Failed > 0 {
		fmt.Printf("%-40s %10s %10s %-10s %-10s\n", "File", "Pitch", "Speed", "Emotion", "Mood")
		fmt.Println(strings.Repeat("-", 80))
		for _, r := range report.Results {
			if r.Error != "" {
				color.Red("%-40s %s: %s", filepath.Base(r.Filename), r.ErrorKind, r.Error)
				continue
			}
			if opts.Verbose {
				fmt.Printf("%-40s %10.2f %10.2f %-10s %-10s\n",
					filepath.Base(r.Filename), r.Pitch, r.Speed, r.Emotion, r.Mood)
			}
		}
		fmt.Println()
	}
}

func saveCSV(report BatchReport, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"filename", "pitch", "speed", "emotion", "mood", "error_kind", "error", "processing_time_ms",
	}); err != nil {
		return err
	}

	for _, r := range report.Results {
		if err := writer.Write([]string{
			r.Filename,
			fmt.Sprintf("%.4f", r.Pitch),
			fmt.Sprintf("%.4f", r.Speed),
			r.Emotion,
			r.Mood,
			r.ErrorKind,
			r.Error,
			fmt.Sprintf("%.2f", r.ProcessingTime),
		}); err != nil {
			return err
		}
	}
	return nil
}

func saveJSON(report BatchReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
