package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// RunOutputDir creates the directory holding one run's artifacts
func (om *OutputManager) RunOutputDir(runID string) (string, error) {
	runDir := filepath.Join(om.BaseOutputDir, filepath.Base(runID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}
	return runDir, nil
}

// FilePath returns the full path for an artifact of a run, creating the
// run directory on demand
func (om *OutputManager) FilePath(runID, fileName string) (string, error) {
	runDir, err := om.RunOutputDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// ExistingFilePath resolves an artifact without creating anything
func (om *OutputManager) ExistingFilePath(runID, fileName string) (string, error) {
	p := filepath.Join(om.BaseOutputDir, filepath.Base(runID), filepath.Base(fileName))
	if _, err := os.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

// DownloadURL is the API path serving an artifact
func (om *OutputManager) DownloadURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/runs/%s/files/%s", runID, filepath.Base(fileName))
}

// FileType determines the file type based on extension
func (om *OutputManager) FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	default:
		return "unknown"
	}
}

// ListFiles returns the artifact names of a run in directory order
func (om *OutputManager) ListFiles(runID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(om.BaseOutputDir, filepath.Base(runID)))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
