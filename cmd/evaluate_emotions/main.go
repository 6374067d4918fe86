package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"gonum.org/v1/gonum/stat"

	"voice-mood/config"
	"voice-mood/voice"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	DataDir    string
	ReportPath string
	Verbose    bool
}

// ClassMetrics tracks per-emotion performance
type ClassMetrics struct {
	Emotion       string                  `json:"emotion"`
	TotalSamples  int                     `json:"total_samples"`
	CorrectCount  int                     `json:"correct"`
	Failed        int                     `json:"failed"`
	Accuracy      float64                 `json:"accuracy"`
	AvgPitch      float64                 `json:"avg_pitch"`
	PitchStd      float64                 `json:"pitch_std"`
	AvgSpeed      float64                 `json:"avg_speed"`
	Misclassified []MisclassificationInfo `json:"misclassified,omitempty"`
}

// MisclassificationInfo stores details of incorrect predictions
type MisclassificationInfo struct {
	Filename         string `json:"filename"`
	TrueEmotion      string `json:"true_emotion"`
	PredictedEmotion string `json:"predicted_emotion"`
}

// EvaluationReport contains the evaluation results
type EvaluationReport struct {
	Timestamp       time.Time                 `json:"timestamp"`
	DataDir         string                    `json:"data_dir"`
	Degraded        bool                      `json:"degraded"`
	TotalSamples    int                       `json:"total_samples"`
	CorrectCount    int                       `json:"correct"`
	OverallAccuracy float64                   `json:"overall_accuracy"`
	ClassMetrics    []ClassMetrics            `json:"class_metrics"`
	ConfusionMatrix map[string]map[string]int `json:"confusion_matrix"`
	ProcessingTime  time.Duration             `json:"processing_time"`
}

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".3gp": true,
	".mp4": true, ".ogg": true, ".opus": true, ".webm": true, ".flac": true,
}

// Scores the emotion model against <dir>/<Emotion>/*.wav recordings.
func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Emotion Model Evaluation ===")
	log.Printf("Labelled data: %s\n", opts.DataDir)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}

	ctx := context.Background()
	pipeline := voice.NewPipelineFromConfig(ctx, cfg)
	if pipeline.Artifacts().Degraded() {
		color.Yellow("Emotion model unavailable: every prediction will be %s", voice.NeutralLabel)
	}

	subdirs, err := discoverSubdirectories(opts.DataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read evaluation directory: %v", err)
	}
	log.Printf("Found %d emotion folders\n", len(subdirs))

	report := evaluate(ctx, pipeline, subdirs, opts)
	report.DataDir = opts.DataDir
	report.Degraded = pipeline.Artifacts().Degraded()

	printReport(report)

	if opts.ReportPath != "" {
		if err := saveReport(report, opts.ReportPath); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("Report saved to: %s\n", opts.ReportPath)
		}
	}
}

func parseFlags() EvaluationConfig {
	opts := EvaluationConfig{}

	flag.StringVar(&opts.DataDir, "dir", "evaluation_data",
		"Directory with one sub-folder of recordings per emotion")
	flag.StringVar(&opts.ReportPath, "report", "evaluation_report.json",
		"Path to save the JSON report (empty to skip)")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Log every failed file")
	flag.Parse()

	return opts
}

func discoverSubdirectories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var subdirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		subdirs = append(subdirs, filepath.Join(root, entry.Name()))
	}
	sort.Strings(subdirs)
	return subdirs, nil
}

// emotionFromDirectory maps "fearful" or "FEAR" style folder names onto the
// label spelling used by the model.
func emotionFromDirectory(dir string) string {
	name := strings.TrimSpace(strings.ReplaceAll(filepath.Base(dir), "_", " "))
	if name == "" {
		return voice.NeutralLabel
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}

func evaluate(ctx context.Context, pipeline *voice.Pipeline, subdirs []string, opts EvaluationConfig) EvaluationReport {
	report := EvaluationReport{
		Timestamp:       time.Now(),
		ConfusionMatrix: make(map[string]map[string]int),
	}

	for _, dir := range subdirs {
		metrics := evaluateClass(ctx, pipeline, dir, opts, &report)
		report.ClassMetrics = append(report.ClassMetrics, metrics)
		report.CorrectCount += metrics.CorrectCount
		report.TotalSamples += metrics.TotalSamples
	}

	if report.TotalSamples > 0 {
		report.OverallAccuracy = float64(report.CorrectCount) / float64(report.TotalSamples) * 100
	}
	report.ProcessingTime = time.Since(report.Timestamp)
	return report
}

func evaluateClass(ctx context.Context, pipeline *voice.Pipeline, dir string, opts EvaluationConfig, report *EvaluationReport) ClassMetrics {
	trueEmotion := emotionFromDirectory(dir)
	metrics := ClassMetrics{Emotion: trueEmotion}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("WARNING: Failed to read directory %s: %v\n", dir, err)
		return metrics
	}

	var pitches, speeds []float64
	for _, entry := range entries {
		if entry.IsDir() || !audioExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		metrics.TotalSamples++

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			metrics.Failed++
			continue
		}
		result, err := pipeline.Analyze(ctx, data, entry.Name())
		if err != nil {
			metrics.Failed++
			if opts.Verbose {
				log.Printf("  ERROR processing %s: %v\n", entry.Name(), err)
			}
			continue
		}

		pitches = append(pitches, result.Pitch)
		speeds = append(speeds, result.Speed)

		if report.ConfusionMatrix[trueEmotion] == nil {
			report.ConfusionMatrix[trueEmotion] = make(map[string]int)
		}
		report.ConfusionMatrix[trueEmotion][result.Emotion]++

		if strings.EqualFold(result.Emotion, trueEmotion) {
			metrics.CorrectCount++
		} else {
			metrics.Misclassified = append(metrics.Misclassified, MisclassificationInfo{
				Filename:         entry.Name(),
				TrueEmotion:      trueEmotion,
				PredictedEmotion: result.Emotion,
			})
		}
	}

	if metrics.TotalSamples > 0 {
		metrics.Accuracy = float64(metrics.CorrectCount) / float64(metrics.TotalSamples) * 100
	}
	if len(pitches) > 0 {
		metrics.AvgPitch, metrics.PitchStd = stat.PopMeanStdDev(pitches, nil)
		metrics.AvgSpeed = stat.Mean(speeds, nil)
	}
	return metrics
}

func printReport(report EvaluationReport) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("EVALUATION RESULTS")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("Overall Accuracy: %.2f%% (%d/%d correct)\n",
		report.OverallAccuracy, report.CorrectCount, report.TotalSamples)
	fmt.Printf("Processing Time: %.2f seconds\n\n", report.ProcessingTime.Seconds())

	fmt.Printf("%-12s %9s %8s %10s %10s %9s\n", "Emotion", "Accuracy", "Samples", "Pitch", "PitchStd", "Speed")
	fmt.Println(strings.Repeat("-", 80))

	sorted := make([]ClassMetrics, len(report.ClassMetrics))
	copy(sorted, report.ClassMetrics)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Accuracy > sorted[j].Accuracy
	})

	for _, m := range sorted {
		line := fmt.Sprintf("%-12s %8.1f%% %8d %10.1f %10.1f %9.1f",
			m.Emotion, m.Accuracy, m.TotalSamples, m.AvgPitch, m.PitchStd, m.AvgSpeed)
		if m.Accuracy < 70 {
			color.Yellow("%s", line)
		} else {
			color.Green("%s", line)
		}
	}
	fmt.Println()

	printConfusionMatrix(report.ConfusionMatrix)
	printMisclassifications(report.ClassMetrics)
}

func printConfusionMatrix(matrix map[string]map[string]int) {
	if len(matrix) == 0 {
		return
	}

	seen := make(map[string]bool)
	var labels []string
	for actual, row := range matrix {
		for _, l := range append([]string{actual}, keys(row)...) {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	sort.Strings(labels)

	fmt.Println("Confusion Matrix:")
	fmt.Printf("%-15s", "Actual \\ Pred")
	for _, label := range labels {
		fmt.Printf(" %7s", truncate(label, 7))
	}
	fmt.Println()

	for _, actual := range labels {
		if matrix[actual] == nil {
			continue
		}
		fmt.Printf("%-15s", truncate(actual, 15))
		for _, predicted := range labels {
			if count := matrix[actual][predicted]; count > 0 {
				fmt.Printf(" %7d", count)
			} else {
				fmt.Printf(" %7s", ".")
			}
		}
		fmt.Println()
	}
	fmt.Println()
}

func printMisclassifications(metrics []ClassMetrics) {
	total := 0
	for _, m := range metrics {
		total += len(m.Misclassified)
	}
	if total == 0 {
		color.Green("No misclassifications")
		return
	}

	fmt.Printf("Misclassifications (%d total):\n", total)
	for _, m := range metrics {
		for _, miss := range m.Misclassified {
			color.Red("  %s: %s -> %s", miss.Filename, miss.TrueEmotion, miss.PredictedEmotion)
		}
	}
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func saveReport(report EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
