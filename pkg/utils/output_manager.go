package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager lays out exported files per generation.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateGenerationDir creates the directory holding a generation's outputs.
func (om *OutputManager) CreateGenerationDir(generationID string) (string, error) {
	if generationID == "" || strings.ContainsAny(generationID, `/\`) || generationID == "." || generationID == ".." {
		return "", fmt.Errorf("invalid generation id %q", generationID)
	}
	dir := filepath.Join(om.BaseOutputDir, generationID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create generation output directory: %w", err)
	}
	return dir, nil
}

// GetOutputFilePath generates a full path for an output file
func (om *OutputManager) GetOutputFilePath(generationID, fileName string) (string, error) {
	dir, err := om.CreateGenerationDir(generationID)
	if err != nil {
		return "", err
	}
	// Clean the filename to remove any path separators
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// GetDownloadURL returns the API path serving a generation's CSV export.
func (om *OutputManager) GetDownloadURL(generationID string) string {
	return fmt.Sprintf("/api/v1/generations/%s/export", generationID)
}

// FileType determines the export format based on extension
func FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".tsv":
		return "tsv"
	default:
		return "unknown"
	}
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
