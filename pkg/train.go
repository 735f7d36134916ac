package pkg

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/rs/zerolog/log"

	"rxforest/pkg/io"
	"rxforest/pkg/model"
	"rxforest/pkg/report"
)

// ErrVerification is returned when the reloaded model does not reproduce the
// predictions of the model that was saved.
var ErrVerification = errors.New("model verification failed")

type Trainer struct {
	params TrainingParameters
	runID  string
}

// Result describes a completed training run.
type Result struct {
	RunID       string
	ShuffleSeed uint64
	TrainSize   int
	TestSize    int
	Classes     []string
	Metrics     *Metrics
	MetricsFile string
	PlotFile    string
	ModelFile   string
}

// Train loads the data, fits the pipeline, writes the metrics report, the
// confusion matrix plot and the model, then reloads the model to check it.
// Any failure stops the run; outputs written before it are left in place.
func Train(params TrainingParameters) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{params: params, runID: uuid.NewString()}
	return t.run()
}

func (t *Trainer) run() (*Result, error) {
	p := t.params
	res := &Result{
		RunID:       t.runID,
		ShuffleSeed: t.shuffleSeed(),
		MetricsFile: filepath.Join(p.ResultsDir, report.MetricsFile),
		PlotFile:    filepath.Join(p.ResultsDir, report.PlotFile),
		ModelFile:   p.ModelFile,
	}

	table, err := io.LoadTable(p.DataFile, p.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("error reading training data: %w", err)
	}
	table = io.Shuffle(table, rand.NewLockedRand(res.ShuffleSeed))
	log.Info().Str("RunID", t.runID).Str("File", p.DataFile).Int("Rows", table.Len()).
		Uint64("ShuffleSeed", res.ShuffleSeed).Msg("Loaded data")

	X, y := io.SplitFeaturesLabels(table)
	XTrain, XTest, yTrain, yTest, err := io.TrainTestSplit(X, y, p.TestFraction, p.SplitSeed)
	if err != nil {
		return nil, fmt.Errorf("error splitting data: %w", err)
	}
	res.TrainSize, res.TestSize = len(XTrain), len(XTest)
	log.Info().Int("Train", res.TrainSize).Int("Test", res.TestSize).Uint64("SplitSeed", p.SplitSeed).Msg("Split data")

	metaData := model.NewMetadata(table.Columns, table.TargetColumn, p.CategoricalColumns, p.NumericColumns)
	if err := metaData.Validate(); err != nil {
		return nil, err
	}
	pipeline := model.NewPipeline(model.PipelineConfig{
		CategoricalFeatures: p.CategoricalColumns,
		NumericFeatures:     p.NumericColumns,
		HandleUnknown:       model.UnknownPolicy(p.HandleUnknown),
		NumTrees:            p.NumTrees,
		ForestSeed:          p.ForestSeed,
		MaxDepth:            p.MaxDepth,
		MinSamplesSplit:     p.MinSamplesSplit,
	})
	log.Debug().Strs("Categorical", selectNames(metaData.FeatureNames(), p.CategoricalColumns)).
		Strs("Numeric", selectNames(metaData.FeatureNames(), p.NumericColumns)).Msg("Column roles")
	start := time.Now()
	if err := pipeline.Fit(XTrain, yTrain); err != nil {
		return nil, fmt.Errorf("error fitting pipeline: %w", err)
	}
	metaData.TargetMap = pipeline.ClassMap
	res.Classes = pipeline.Classes()
	log.Info().Int("Trees", p.NumTrees).Strs("Classes", res.Classes).Dur("Elapsed", time.Since(start)).Msg("Fitted pipeline")

	predictions, err := pipeline.Predict(XTest)
	if err != nil {
		return nil, fmt.Errorf("error predicting test data: %w", err)
	}
	if res.Metrics, err = Evaluate(yTest, predictions); err != nil {
		return nil, err
	}
	res.Metrics.LogMetrics()
	log.Info().Msgf("Accuracy: %.0f%% F1: %.2f", res.Metrics.Accuracy*100, res.Metrics.MacroF1)

	if err := report.WriteMetrics(res.MetricsFile, res.Metrics.Accuracy, res.Metrics.MacroF1); err != nil {
		return nil, err
	}
	cm, err := report.NewConfusionMatrix(yTest, predictions, res.Classes)
	if err != nil {
		return nil, err
	}
	if err := report.RenderConfusionMatrix(res.PlotFile, cm, p.DPI); err != nil {
		return nil, err
	}
	log.Info().Str("Metrics", res.MetricsFile).Str("Plot", res.PlotFile).Int("Plotted", cm.Total()).Msg("Wrote results")

	m := &model.Model{MetaData: metaData, Pipeline: pipeline}
	if err := io.SaveModel(p.ModelFile, m, t.runID); err != nil {
		return nil, fmt.Errorf("error saving model to %s: %w", p.ModelFile, err)
	}
	log.Info().Str("Model", p.ModelFile).Msg("Saved model")

	if err := t.reloadAndVerify(XTest, predictions); err != nil {
		return nil, err
	}
	return res, nil
}

// reloadAndVerify loads the saved model back and checks it predicts the same
// labels for sample. Unless StrictTrust is set, the types the artifact reports
// as untrusted are trusted for this one load.
func (t *Trainer) reloadAndVerify(sample [][]string, expected []string) error {
	path := t.params.ModelFile
	untrusted, err := io.UntrustedTypes(path)
	if err != nil {
		return fmt.Errorf("error inspecting model %s: %w", path, err)
	}
	trusted := io.NewSet()
	if !t.params.StrictTrust {
		trusted = io.NewSet(untrusted...)
		logTrust(untrusted)
	}
	reloaded, header, err := io.LoadModel(path, trusted)
	if err != nil {
		return fmt.Errorf("error reloading model %s: %w", path, err)
	}
	if header.RunID != t.runID {
		return fmt.Errorf("%w: model file %s belongs to run %s", ErrVerification, path, header.RunID)
	}
	got, err := reloaded.Pipeline.Predict(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	for i := range expected {
		if got[i] != expected[i] {
			return fmt.Errorf("%w: row %d predicted %s, expected %s", ErrVerification, i, got[i], expected[i])
		}
	}
	log.Info().Str("Model", path).Int("Rows", len(sample)).Msg("Verified reloaded model")
	return nil
}

func (t *Trainer) shuffleSeed() uint64 {
	if t.params.ShuffleSeed < 0 {
		return uint64(time.Now().UnixNano())
	}
	return uint64(t.params.ShuffleSeed)
}

func selectNames(names []string, positions []int) []string {
	selected := make([]string, len(positions))
	for i, p := range positions {
		selected[i] = names[p]
	}
	return selected
}
