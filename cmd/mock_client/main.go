package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voice-mood/voice"
)

// Uploads recordings to a running server the way the mobile client does.
func main() {
	dir := flag.String("dir", "samples", "Directory containing recordings to upload (ignored if -file is set)")
	file := flag.String("file", "", "Single recording to upload (overrides -dir)")
	endpoint := flag.String("url", "http://localhost:5001/analyze", "Analysis endpoint")
	delay := flag.Duration("delay", 2*time.Second, "Delay between uploads when using -dir")
	flag.Parse()

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		log.Fatalf("failed to resolve files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no recordings found (file=%s dir=%s)", *file, *dir)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	fmt.Printf("Uploading %d recording(s) to %s\n\n", len(files), *endpoint)
	for idx, path := range files {
		if err := uploadRecording(client, path, *endpoint); err != nil {
			log.Printf("upload failed for %s: %v\n", path, err)
		}

		if idx < len(files)-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func resolveFiles(single, dir string) ([]string, error) {
	if single != "" {
		return []string{single}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".wav", ".mp3", ".m4a", ".aac", ".3gp", ".ogg", ".webm", ".flac":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func uploadRecording(client *http.Client, path, endpoint string) error {
	fmt.Printf("→ %s\n", filepath.Base(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post analysis request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(payload))
	}

	var result voice.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("decode analysis response: %w", err)
	}

	fmt.Printf("   pitch=%.1fHz speed=%.1fBPM emotion=%s mood=%s (%.0fms)\n",
		result.Pitch, result.Speed, result.Emotion, result.Mood, time.Since(started).Seconds()*1000)
	return nil
}
