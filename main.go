package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"voice-mood/config"
	"voice-mood/utils"
	"voice-mood/voice"
	"voice-mood/wav"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

const usage = "Expected 'serve' or 'analyze' subcommand"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	_ = godotenv.Load()

	logger := utils.GetLogger()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load config.", slog.Any("error", xerrors.New(err)))
		os.Exit(1)
	}

	if err := utils.CreateFolder(cfg.Analysis.ScratchDir); err != nil {
		logger.ErrorContext(ctx, "Failed create tmp dir.", slog.Any("error", xerrors.New(err)))
	}

	switch os.Args[1] {
	case "serve":
		if err := wav.CheckFFmpegAvailable(); err != nil {
			log.Printf("WARNING: %v\n", err)
			log.Println("The server will start but only WAV and MP3 uploads can be analysed until FFmpeg is installed.")
		} else {
			log.Println("FFmpeg is available")
		}

		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", cfg.Server.Protocol, "Protocol to use (http or https)")
		port := serveCmd.String("p", cfg.Server.Port, "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(cfg, *protocol, *port)
	case "analyze":
		analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
		asJSON := analyzeCmd.Bool("json", false, "Print the raw JSON result")
		analyzeCmd.Parse(os.Args[2:])
		if analyzeCmd.NArg() < 1 {
			fmt.Println("Usage: analyze [-json] <audio file>")
			os.Exit(1)
		}
		if err := analyzeFile(ctx, cfg, analyzeCmd.Arg(0), *asJSON); err != nil {
			color.Red("analysis failed: %v", err)
			os.Exit(1)
		}
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func analyzeFile(ctx context.Context, cfg *config.Root, path string, asJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	pipeline := voice.NewPipelineFromConfig(ctx, cfg)
	result, err := pipeline.Analyze(ctx, data, filepath.Base(path))
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("File:"), path)
	if pipeline.Artifacts().Degraded() {
		color.Yellow("emotion model unavailable, emotion defaults to %s", voice.NeutralLabel)
	}
	fmt.Printf("  pitch:   %.2f Hz\n", result.Pitch)
	fmt.Printf("  speed:   %.2f BPM\n", result.Speed)
	fmt.Printf("  emotion: %s\n", color.CyanString(result.Emotion))
	fmt.Printf("  mood:    %s\n", color.GreenString(result.Mood))
	return nil
}
