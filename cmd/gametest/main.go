// Regression harness: runs every story in a corpus until its first input
// request and records what reached the screen, catching panics along the
// way. Useful for spotting decoder or codec regressions across hundreds of
// real stories at once.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/xyproto/env/v2"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zmachine"
)

// TestResult captures the outcome of running a single game
type TestResult struct {
	Filename     string   `json:"filename"`
	Version      uint8    `json:"version"`
	Success      bool     `json:"success"`
	PanicMessage string   `json:"panic_message,omitempty"`
	StackTrace   string   `json:"stack_trace,omitempty"`
	FirstScreen  []string `json:"first_screen,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

func main() {
	storiesDir := flag.String("stories", env.Str("ZVM_STORIES_DIR", "stories"), "Directory containing Z-machine story files")
	outputDir := flag.String("output", env.Str("ZVM_TESTDATA_DIR", "testdata"), "Directory to write results to")
	singleGame := flag.String("game", "", "Test a single game file instead of all games")
	flag.Parse()

	if *singleGame != "" {
		runSingleGame(*singleGame)
		return
	}

	runAllGames(*storiesDir, *outputDir)
}

func isStoryFile(name string) bool {
	ext := filepath.Ext(name)
	return len(ext) == 3 && ext[1] == 'z' && ext[2] >= '1' && ext[2] <= '8'
}

func runAllGames(storiesDir, outputDir string) {
	if _, err := os.Stat(storiesDir); os.IsNotExist(err) {
		fmt.Printf("Stories directory not found: %s\n", storiesDir)
		fmt.Println("Run 'go run ./cmd/scraper' first to download games.")
		os.Exit(1)
	}

	entries, err := os.ReadDir(storiesDir)
	if err != nil {
		fmt.Printf("Failed to read stories directory: %v\n", err)
		os.Exit(1)
	}

	var games []string
	for _, entry := range entries {
		if isStoryFile(entry.Name()) {
			games = append(games, filepath.Join(storiesDir, entry.Name()))
		}
	}

	if len(games) == 0 {
		fmt.Printf("No game files found in %s\n", storiesDir)
		os.Exit(1)
	}

	fmt.Printf("Found %d games to test\n", len(games))

	var results []TestResult
	for i, gamePath := range games {
		result := runGameTest(gamePath)
		results = append(results, result)

		status := "✓"
		if !result.Success {
			status = "✗"
		}
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(games), status, result.Filename)
		if !result.Success && result.ErrorMessage != "" {
			fmt.Printf("        Error: %s\n", result.ErrorMessage)
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	resultsPath := filepath.Join(outputDir, "test_results.json")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(resultsPath, resultsJSON, 0644); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
	} else {
		fmt.Printf("\nResults written to %s\n", resultsPath)
	}

	passed, failed := 0, 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
	}
	fmt.Printf("\n=== SUMMARY ===\nPassed: %d\nFailed: %d\nTotal: %d\n", passed, failed, len(results))

	screenshotsPath := filepath.Join(outputDir, "screenshots.txt")
	var screenshots strings.Builder
	for _, r := range results {
		fmt.Fprintf(&screenshots, "=== %s (v%d) ===\n", r.Filename, r.Version)
		if r.Success {
			for _, line := range r.FirstScreen {
				screenshots.WriteString(line + "\n")
			}
		} else {
			fmt.Fprintf(&screenshots, "ERROR: %s\n", r.ErrorMessage)
			if r.PanicMessage != "" {
				fmt.Fprintf(&screenshots, "PANIC: %s\n", r.PanicMessage)
			}
		}
		screenshots.WriteString("\n")
	}
	os.WriteFile(screenshotsPath, []byte(screenshots.String()), 0644) // nolint:errcheck
}

func runSingleGame(gamePath string) {
	result := runGameTest(gamePath)

	fmt.Printf("Game: %s\n", result.Filename)
	fmt.Printf("Version: %d\n", result.Version)
	fmt.Printf("Success: %v\n", result.Success)

	if result.PanicMessage != "" {
		fmt.Printf("Panic: %s\n", result.PanicMessage)
		fmt.Printf("Stack: %s\n", result.StackTrace)
	}
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}

	fmt.Printf("First Screen:\n%s\n", strings.Join(result.FirstScreen, "\n"))
}

func runGameTest(gamePath string) (result TestResult) {
	result.Filename = filepath.Base(gamePath)

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.PanicMessage = fmt.Sprintf("%v", r)
			result.StackTrace = string(debug.Stack())
		}
	}()

	storyBytes, err := os.ReadFile(gamePath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("Failed to read file: %v", err)
		return
	}

	if len(storyBytes) < 64 {
		result.ErrorMessage = "File too small to be a valid Z-machine file"
		return
	}
	result.Version = storyBytes[0]

	outputChannel := make(chan any, 100)
	inputChannel := make(chan zmachine.InputResponse, 10)
	saveRestoreChannel := make(chan zmachine.SaveRestoreResponse, 10)

	options := zcore.DefaultOptions()
	options.RandomSeed = 42 // deterministic screens across runs

	z, err := zmachine.LoadRom(storyBytes, options, inputChannel, saveRestoreChannel, outputChannel)
	if err != nil {
		result.ErrorMessage = err.Error()
		return
	}

	done := make(chan bool)
	go func() {
		z.Run()
		done <- true
	}()

	var screenOutput []string
	timeout := time.After(5 * time.Second)

	for {
		select {
		case msg := <-outputChannel:
			switch v := msg.(type) {
			case string:
				screenOutput = append(screenOutput, strings.Split(v, "\n")...)
			case zmachine.InputRequest, zmachine.CharacterRequest:
				// First input request: the opening screen is complete
				result.Success = true
				result.FirstScreen = screenOutput
				return
			case zmachine.Save:
				saveRestoreChannel <- zmachine.SaveResponse{Success: false}
			case zmachine.Restore:
				saveRestoreChannel <- zmachine.RestoreResponse{Success: false}
			case zmachine.Warning:
				result.Warnings = append(result.Warnings, string(v))
			case zmachine.RuntimeError:
				result.ErrorMessage = string(v)
				return
			case zmachine.Quit:
				result.Success = true
				result.FirstScreen = screenOutput
				return
			}
		case <-timeout:
			result.ErrorMessage = "Timeout waiting for first screen"
			return
		case <-done:
			result.Success = true
			result.FirstScreen = screenOutput
			return
		}
	}
}
