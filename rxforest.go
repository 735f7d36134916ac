package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"rxforest/pkg"
)

func TrainCommand() *cobra.Command {

	var configFile string
	trainingParameters := pkg.DefaultTrainingParameters()

	var cmd = &cobra.Command{
		Use:   "train [-i dataFile] [-o modelFile] [--config config.yaml]",
		Short: "Trains the drug classifier, writes the metrics report and confusion matrix, and saves the verified model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := applyConfig(cmd.Flags(), configFile, &trainingParameters); err != nil {
					return err
				}
			}
			_, err := pkg.Train(trainingParameters)
			return err
		},
	}

	d := trainingParameters
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML file with training parameters; explicit flags override it")
	cmd.Flags().StringVarP(&trainingParameters.DataFile, "data-file", "i", d.DataFile, "name of the CSV data file")
	cmd.Flags().StringVarP(&trainingParameters.TargetColumn, "target-column", "t", d.TargetColumn, "target column")
	cmd.Flags().StringVarP(&trainingParameters.ResultsDir, "results-dir", "", d.ResultsDir, "directory for the metrics report and confusion matrix plot")
	cmd.Flags().StringVarP(&trainingParameters.ModelFile, "model-file", "o", d.ModelFile, "name of the file to save model to")
	cmd.Flags().Float64VarP(&trainingParameters.TestFraction, "test-fraction", "", d.TestFraction, "fraction of rows held out for testing")
	cmd.Flags().Uint64VarP(&trainingParameters.SplitSeed, "split-seed", "", d.SplitSeed, "random seed of the train/test split")
	cmd.Flags().Int64VarP(&trainingParameters.ShuffleSeed, "shuffle-seed", "", d.ShuffleSeed, "random seed of the initial shuffle (negative: unseeded)")
	cmd.Flags().IntVarP(&trainingParameters.NumTrees, "num-trees", "n", d.NumTrees, "number of trees in the forest")
	cmd.Flags().Uint64VarP(&trainingParameters.ForestSeed, "forest-seed", "x", d.ForestSeed, "random seed of the forest")
	cmd.Flags().IntVarP(&trainingParameters.MaxDepth, "max-depth", "", d.MaxDepth, "maximum depth of each tree (0: unlimited)")
	cmd.Flags().IntVarP(&trainingParameters.MinSamplesSplit, "min-samples-split", "", d.MinSamplesSplit, "minimum number of rows a tree node needs to be split")
	cmd.Flags().IntSliceVarP(&trainingParameters.CategoricalColumns, "categorical-columns", "", d.CategoricalColumns, "feature positions holding categorical data")
	cmd.Flags().IntSliceVarP(&trainingParameters.NumericColumns, "numeric-columns", "", d.NumericColumns, "feature positions holding numeric data")
	cmd.Flags().StringVarP(&trainingParameters.HandleUnknown, "handle-unknown", "", d.HandleUnknown, "unseen category policy: error or encode")
	cmd.Flags().IntVarP(&trainingParameters.DPI, "dpi", "", d.DPI, "resolution of the confusion matrix plot")
	cmd.Flags().BoolVarP(&trainingParameters.StrictTrust, "strict-trust", "", d.StrictTrust, "fail the reload check instead of trusting the model's untrusted types")

	return cmd
}

// applyConfig loads the config file into params, then puts back the flags
// that were set on the command line.
func applyConfig(flags *pflag.FlagSet, configFile string, params *pkg.TrainingParameters) error {
	type setting struct {
		flag  *pflag.Flag
		value []string
	}
	var explicit []setting
	flags.Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			explicit = append(explicit, setting{f, sv.GetSlice()})
		} else {
			explicit = append(explicit, setting{f, []string{f.Value.String()}})
		}
	})
	if err := pkg.LoadParameters(configFile, params); err != nil {
		return err
	}
	for _, s := range explicit {
		var err error
		if sv, ok := s.flag.Value.(pflag.SliceValue); ok {
			err = sv.Replace(s.value)
		} else {
			err = s.flag.Value.Set(s.value[0])
		}
		if err != nil {
			return fmt.Errorf("error applying flag --%s: %w", s.flag.Name, err)
		}
	}
	return nil
}

func TestCommand() *cobra.Command {
	var modelFile string
	var inputFile string
	var outputFile string
	var trusted []string

	var cmd = &cobra.Command{
		Use:   "test -m modelFile -i dataFile [-o outputFile] [--trust type]...",
		Short: "Runs the provided model on a labelled data file, logs the metrics and optionally writes the predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := pkg.Test(modelFile, inputFile, outputFile, trusted)
			return err
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to test")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of data input file")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of output file (optional)")
	cmd.Flags().StringArrayVarP(&trusted, "trust", "", nil, "type to trust when loading the model (repeatable, see inspect)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func InspectCommand() *cobra.Command {
	var modelFile string

	var cmd = &cobra.Command{
		Use:   "inspect -m modelFile",
		Short: "Lists the types stored in a model file that are not trusted by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			untrusted, err := pkg.Inspect(modelFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(untrusted, "\n"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to inspect")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

var logLevel string
var logFormat string

func NewRootCommand() *cobra.Command {
	Main := &cobra.Command{Use: "rxforest", PersistentPreRunE: setupLogging, SilenceUsage: true, SilenceErrors: true}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(TestCommand())
	Main.AddCommand(InspectCommand())
	return Main
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {

	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		return fmt.Errorf("invalid logging level %q", logLevel)
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", logFormat)
	}
	return nil
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}

	}
	log.Logger = log.Output(writer)

}
