// Package render publishes a run as a static daily page, an archive index
// and machine-readable JSON artifacts.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"dailyintel/internal/core"
	"dailyintel/internal/logger"
)

const (
	dailyDir = "daily"
	dataDir  = "data"
)

var datePage = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.md$`)

// Artifacts lists the files written for one run.
type Artifacts struct {
	DailyPage    string   `json:"daily_page"`
	HTMLPage     string   `json:"html_page"`
	ArchiveIndex string   `json:"archive_index"`
	ArchiveHTML  string   `json:"archive_html"`
	DataFiles    []string `json:"data_files"`
}

// Renderer writes run artifacts under an output directory.
type Renderer struct {
	outputDir string
}

// NewRenderer creates a renderer rooted at outputDir.
func NewRenderer(outputDir string) *Renderer {
	if outputDir == "" {
		outputDir = "site" // Default output directory
	}
	return &Renderer{outputDir: outputDir}
}

// OutputDir returns the root directory artifacts are written to.
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Render writes the daily page, its HTML version, the refreshed archive
// index and the run's JSON data files. Rendering the same inputs twice
// produces the same files.
func (r *Renderer) Render(result core.CurationResult, output core.SynthesisOutput, record core.RunRecord) (Artifacts, error) {
	var art Artifacts
	if result.RunDate == "" {
		return art, fmt.Errorf("cannot render a result without a run date")
	}

	daily := filepath.Join(r.outputDir, dailyDir)
	if err := os.MkdirAll(daily, 0755); err != nil {
		return art, fmt.Errorf("failed to create output directory %s: %w", daily, err)
	}

	page := DailyMarkdown(result, output)
	art.DailyPage = filepath.Join(daily, result.RunDate+".md")
	if err := WriteFile(art.DailyPage, []byte(page)); err != nil {
		return art, err
	}

	art.HTMLPage = filepath.Join(daily, result.RunDate+".html")
	if err := WriteFile(art.HTMLPage, ToHTML(page, pageTitle(result.RunDate))); err != nil {
		return art, err
	}

	dates, err := r.Dates()
	if err != nil {
		return art, err
	}
	art.ArchiveIndex = filepath.Join(daily, "index.md")
	if err := WriteFile(art.ArchiveIndex, []byte(ArchiveIndex(dates))); err != nil {
		return art, err
	}

	art.ArchiveHTML = filepath.Join(daily, "index.html")
	if err := WriteFile(art.ArchiveHTML, ArchiveHTML(dates)); err != nil {
		return art, err
	}

	files, err := r.writeData(result, output, record)
	art.DataFiles = files
	if err != nil {
		return art, err
	}

	logger.Info("Rendered daily page", "run_date", result.RunDate, "page", art.DailyPage, "data_files", len(files))
	return art, nil
}

func (r *Renderer) writeData(result core.CurationResult, output core.SynthesisOutput, record core.RunRecord) ([]string, error) {
	dir := filepath.Join(r.outputDir, dataDir, result.RunDate)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	groups := result.Groups
	if groups == nil {
		groups = []core.Group{}
	}
	rejected := result.Rejected
	if rejected == nil {
		rejected = []core.Rejection{}
	}

	docs := []struct {
		name string
		v    any
	}{
		{"selected.json", groups},
		{"rejected.json", rejected},
		{"synthesis.json", output},
		{"run.json", record},
	}

	var written []string
	for _, d := range docs {
		data, err := json.MarshalIndent(d.v, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to encode %s: %w", d.name, err)
		}
		path := filepath.Join(dir, d.name)
		if err := WriteFile(path, append(data, '\n')); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// Dates returns the run dates that have a daily page, oldest first.
func (r *Renderer) Dates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.outputDir, dailyDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list daily pages: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() || !datePage.MatchString(e.Name()) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(dates)
	return dates, nil
}

// WriteFile replaces path atomically: content goes to a temporary file in
// the same directory which is then renamed over the target.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
