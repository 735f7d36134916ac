package pkg

import (
	"encoding/csv"
	"fmt"
	gio "io"

	"github.com/rs/zerolog/log"

	"rxforest/pkg/io"
)

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func logTrust(types []string) {
	for _, t := range types {
		log.Warn().Str("Type", t).Msg("Trusting type for this load")
	}
}

// Test loads a model, predicts a labelled data file and logs the metrics.
// When outputFileName is set, a label,prediction line is written per row.
func Test(modelFileName, inputFileName, outputFileName string, trusted []string) (*Metrics, error) {
	m, _, err := io.LoadModel(modelFileName, io.NewSet(trusted...))
	if err != nil {
		return nil, fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}
	table, err := io.LoadTable(inputFileName, m.MetaData.TargetName())
	if err != nil {
		return nil, fmt.Errorf("error loading data from %s: %w", inputFileName, err)
	}
	if len(table.Columns) != len(m.MetaData.Columns) || table.TargetColumn != m.MetaData.TargetColumn {
		return nil, fmt.Errorf("%w: data header %v does not match model columns %v", io.ErrInputParse, table.Columns, m.MetaData.Columns)
	}
	X, y := io.SplitFeaturesLabels(table)
	predictions, err := m.Pipeline.Predict(X)
	if err != nil {
		return nil, err
	}

	if err := writePredictions(outputFileName, y, predictions); err != nil {
		return nil, err
	}

	// every class the model knows is scored, including those absent from the file
	metrics, err := Evaluate(y, predictions, m.MetaData.TargetMap.Names()...)
	if err != nil {
		return nil, err
	}
	metrics.LogMetrics()
	return metrics, nil
}

// writePredictions writes one label,prediction line per row. An empty
// outputFileName discards the lines.
func writePredictions(outputFileName string, labels, predictions []string) error {
	if outputFileName == "" {
		return writePredictionLines(NoopWriter{}, labels, predictions)
	}
	outputFile, err := io.CreateFile(outputFileName)
	if err != nil {
		return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
	}
	if err := writePredictionLines(outputFile, labels, predictions); err != nil {
		outputFile.Close()
		return err
	}
	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("%w: error closing %s: %v", io.ErrFilesystem, outputFileName, err)
	}
	return nil
}

func writePredictionLines(writer gio.Writer, labels, predictions []string) error {
	w := csv.NewWriter(writer)
	for i := range labels {
		if err := w.Write([]string{labels[i], predictions[i]}); err != nil {
			return fmt.Errorf("%w: error writing predictions: %v", io.ErrFilesystem, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: error writing predictions: %v", io.ErrFilesystem, err)
	}
	return nil
}

// Inspect logs the artifact header and returns the types a load would have to trust.
func Inspect(modelFileName string) ([]string, error) {
	header, err := io.ReadHeader(modelFileName)
	if err != nil {
		return nil, err
	}
	untrusted, err := io.UntrustedTypes(modelFileName)
	if err != nil {
		return nil, err
	}
	log.Info().Str("RunID", header.RunID).Time("Created", header.CreatedAt).Strs("Types", header.Types).Msg("Model artifact")
	for _, t := range untrusted {
		log.Info().Str("Type", t).Msg("Untrusted")
	}
	return untrusted, nil
}
