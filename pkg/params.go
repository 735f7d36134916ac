package pkg

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rxforest/pkg/model"
)

type TrainingParameters struct {
	DataFile     string `yaml:"data_file"`
	TargetColumn string `yaml:"target_column"`
	ResultsDir   string `yaml:"results_dir"`
	ModelFile    string `yaml:"model_file"`

	TestFraction float64 `yaml:"test_fraction"`
	SplitSeed    uint64  `yaml:"split_seed"`
	// ShuffleSeed < 0 draws the shuffle seed from the clock
	ShuffleSeed  int64   `yaml:"shuffle_seed"`

	NumTrees           int    `yaml:"num_trees"`
	ForestSeed         uint64 `yaml:"forest_seed"`
	// MaxDepth 0 grows every tree until its leaves are pure
	MaxDepth           int    `yaml:"max_depth"`
	MinSamplesSplit    int    `yaml:"min_samples_split"`
	CategoricalColumns []int  `yaml:"categorical_columns"`
	NumericColumns     []int  `yaml:"numeric_columns"`
	HandleUnknown      string `yaml:"handle_unknown"`

	DPI         int  `yaml:"dpi"`
	StrictTrust bool `yaml:"strict_trust"`
}

func DefaultTrainingParameters() TrainingParameters {
	return TrainingParameters{
		DataFile:           "Data/drug.csv",
		TargetColumn:       "Drug",
		ResultsDir:         "Results",
		ModelFile:          "Model/drug_pipeline.rxf",
		TestFraction:       0.3,
		SplitSeed:          125,
		ShuffleSeed:        -1,
		NumTrees:           100,
		ForestSeed:         125,
		MinSamplesSplit:    2,
		CategoricalColumns: []int{1, 2, 3},
		NumericColumns:     []int{0, 4},
		HandleUnknown:      string(model.UnknownError),
		DPI:                120,
	}
}

// LoadParameters decodes a YAML config file over params. Keys absent from the
// file leave the current values in place; unknown keys are an error.
func LoadParameters(configFile string, params *TrainingParameters) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}
	return nil
}

func (p TrainingParameters) Validate() error {
	if _, err := model.ParseUnknownPolicy(p.HandleUnknown); err != nil {
		return err
	}
	if p.TestFraction <= 0 || p.TestFraction >= 1 {
		return fmt.Errorf("test fraction %v must be in (0, 1)", p.TestFraction)
	}
	if p.NumTrees <= 0 {
		return fmt.Errorf("number of trees must be positive, got %d", p.NumTrees)
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples split must be at least 2, got %d", p.MinSamplesSplit)
	}
	if p.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %d", p.DPI)
	}
	if p.DataFile == "" || p.ModelFile == "" || p.ResultsDir == "" {
		return fmt.Errorf("data file, model file and results dir are required")
	}
	return nil
}
