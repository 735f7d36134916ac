// Package report writes the human readable outputs of a training run.
package report

import (
	"fmt"

	"rxforest/pkg/io"
)

const (
	MetricsFile = "metrics.txt"
	PlotFile    = "model_results.png"
)

// WriteMetrics writes accuracy and F1 rounded to two decimals, replacing any
// existing file. The directory is created if missing.
func WriteMetrics(path string, accuracy, f1 float64) error {
	outputFile, err := io.CreateFile(path)
	if err != nil {
		return fmt.Errorf("error creating metrics file %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(outputFile, "Accuracy = %.2f, F1 Score = %.2f.\n", accuracy, f1); err != nil {
		outputFile.Close()
		return fmt.Errorf("%w: error writing %s: %v", io.ErrFilesystem, path, err)
	}
	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", io.ErrFilesystem, err)
	}
	return nil
}
