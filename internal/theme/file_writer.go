package theme

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/genricoloni/glowcard/internal/domain"
	"go.uber.org/zap"
)

// StylesheetFilename is the name of the generated stylesheet inside the output dir
const StylesheetFilename = "glowcard.css"

// FileWriter publishes the card theme as a stylesheet on disk
type FileWriter struct {
	logger *zap.Logger
	appCfg domain.Config

	mu   sync.Mutex
	last string
}

// NewFileWriter creates a publisher writing into appCfg's output directory
func NewFileWriter(logger *zap.Logger, appCfg domain.Config) *FileWriter {
	return &FileWriter{logger: logger, appCfg: appCfg}
}

// Publish satisfies domain.Publisher. Write failures are logged.
func (w *FileWriter) Publish(state domain.CardState) {
	if _, err := w.Write(state.Theme); err != nil {
		w.logger.Error("Failed to write theme stylesheet", zap.Error(err))
	}
}

// Write renders vars and stores them, skipping the write when nothing changed.
// It returns the absolute path of the stylesheet.
func (w *FileWriter) Write(vars map[string]string) (string, error) {
	css := Render(vars)

	// 1. Ensure output directory exists
	outputDir := w.appCfg.GetOutputDir()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, StylesheetFilename)

	w.mu.Lock()
	defer w.mu.Unlock()
	if css == w.last {
		return outputPath, nil
	}

	// 2. Write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(outputDir, StylesheetFilename+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp stylesheet: %w", err)
	}
	if _, err := tmp.WriteString(css); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write stylesheet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write stylesheet: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		w.logger.Debug("Failed to chmod stylesheet", zap.Error(err))
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to replace stylesheet: %w", err)
	}
	w.last = css

	w.logger.Debug("Theme stylesheet written", zap.String("path", outputPath))

	absPath, err := filepath.Abs(outputPath)
	if err != nil {
		return outputPath, nil // Return relative path if abs fails
	}
	return absPath, nil
}
