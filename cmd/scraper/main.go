// Fetches the if-archive z-code index and downloads every story file into a
// local corpus for the gametest regression harness.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xyproto/env/v2"
)

const indexURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"

var storyFilePattern = regexp.MustCompile(`.*\.z[12345678]$`)

func main() {
	outputDir := env.Str("ZVM_STORIES_DIR", "stories")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	c := &http.Client{Timeout: 30 * time.Second}
	res, err := c.Get(indexURL)
	if err != nil {
		fmt.Printf("Failed to fetch index: %v\n", err)
		os.Exit(1)
	}
	defer res.Body.Close() // nolint:errcheck

	if res.StatusCode != 200 {
		fmt.Printf("Bad status code: %d\n", res.StatusCode)
		os.Exit(1)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		fmt.Printf("Failed to parse HTML: %v\n", err)
		os.Exit(1)
	}

	type game struct {
		name string
		url  string
	}
	var games []game

	doc.Find("dl dt").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Find("a").Attr("href")
		if !exists || !storyFilePattern.MatchString(href) {
			return
		}

		games = append(games, game{
			name: filepath.Base(href),
			url:  "https://www.ifarchive.org" + href,
		})
	})

	fmt.Printf("Found %d games to download\n", len(games))

	downloaded, skipped, failed := 0, 0, 0
	for i, g := range games {
		destPath := filepath.Join(outputDir, g.name)

		if _, err := os.Stat(destPath); err == nil {
			skipped++
			continue
		}

		fmt.Printf("[%d/%d] Downloading %s... ", i+1, len(games), g.name)

		data, err := fetch(c, g.url)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failed++
			continue
		}

		if err := os.WriteFile(destPath, data, 0644); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failed++
			continue
		}

		fmt.Printf("OK (%d bytes)\n", len(data))
		downloaded++

		// Be nice to the server
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("\nDone! Downloaded: %d, Skipped: %d, Failed: %d\n", downloaded, skipped, failed)

	var manifest strings.Builder
	for _, g := range games {
		manifest.WriteString(g.name + "\n")
	}
	manifestPath := filepath.Join(outputDir, "manifest.txt")
	os.WriteFile(manifestPath, []byte(manifest.String()), 0644) // nolint:errcheck
	fmt.Printf("Wrote manifest to %s\n", manifestPath)
}

func fetch(c *http.Client, url string) ([]byte, error) {
	resp, err := c.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
