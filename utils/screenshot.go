package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/playwright-community/playwright-go"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// EvidenceRecorder saves failure screenshots under <dir>/<run>/<job>.png
type EvidenceRecorder struct {
	outputDir string
}

func NewEvidenceRecorder(dir string) *EvidenceRecorder {
	if dir == "" {
		dir = filepath.Join(".", "logs", "screenshots")
	}
	return &EvidenceRecorder{outputDir: dir}
}

// PathFor returns where the evidence for a run/job pair is written.
func (s *EvidenceRecorder) PathFor(runID, jobID string) string {
	return filepath.Join(s.outputDir, safeName(runID), safeName(jobID)+".png")
}

// Capture takes a full-page screenshot and returns its path.
func (s *EvidenceRecorder) Capture(page playwright.Page, runID, jobID string) (string, error) {
	if page == nil {
		return "", fmt.Errorf("no page to capture")
	}
	path := s.PathFor(runID, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}

	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		log.Printf("⚠️ Failed to capture screenshot: %v", err)
		return "", err
	}

	log.Printf("📸 Evidence saved: %s", path)
	return path, nil
}

func safeName(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
