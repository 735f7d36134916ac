package model

import (
	"errors"
	"fmt"
	"reflect"

	"rxforest/pkg/model/forest"
)

var (
	// ErrFit marks input that the pipeline cannot be fitted on.
	ErrFit = errors.New("fit error")
	// ErrUnknownCategory is returned when a categorical value was not seen during fit.
	ErrUnknownCategory = errors.New("unknown category")
	ErrNotFitted       = errors.New("not fitted")
)

type PipelineConfig struct {
	CategoricalFeatures []int
	NumericFeatures     []int
	HandleUnknown       UnknownPolicy
	NumTrees            int
	ForestSeed          uint64
	MaxDepth            int
	MinSamplesSplit     int
}

// Pipeline applies the column transform and then the forest. It is not
// modified by Predict.
type Pipeline struct {
	Transform *ColumnTransformer
	Forest    *forest.Forest

	// ClassMap is the learned class ordering; Forest outputs index into it.
	ClassMap NameMap
}

type Model struct {
	MetaData *Metadata
	Pipeline *Pipeline
}

func NewPipeline(c PipelineConfig) *Pipeline {
	opts := []forest.Option{
		forest.WithNumTrees(c.NumTrees),
		forest.WithSeed(c.ForestSeed),
		forest.WithMaxDepth(c.MaxDepth),
	}
	// zero keeps the forest default
	if c.MinSamplesSplit > 0 {
		opts = append(opts, forest.WithMinSamplesSplit(c.MinSamplesSplit))
	}
	return &Pipeline{
		Transform: NewColumnTransformer(c.CategoricalFeatures, c.NumericFeatures, c.HandleUnknown),
		Forest:    forest.New(opts...),
	}
}

// Fit learns the class ordering, the column transform and the forest from the
// training rows. X and y are not modified.
func (p *Pipeline) Fit(X [][]string, y []string) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: no training rows", ErrFit)
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrFit, len(X), len(y))
	}
	classes := NewSortedNameMap(y)
	if err := p.Transform.Fit(X); err != nil {
		return err
	}
	Xt, err := p.Transform.Transform(X)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFit, err)
	}
	targets := make([]int, len(y))
	for i, label := range y {
		targets[i], _ = classes.ContainsName(label)
	}
	if err := p.Forest.Fit(Xt, targets, classes.Size()); err != nil {
		return fmt.Errorf("%w: %v", ErrFit, err)
	}
	p.ClassMap = classes
	return nil
}

// Validate checks a fitted pipeline, such as one decoded from a file, against
// the number of features in a row.
func (p *Pipeline) Validate(numFeatures int) error {
	if p.Transform == nil || p.Forest == nil {
		return errors.New("pipeline: missing step")
	}
	if err := p.Transform.Validate(numFeatures); err != nil {
		return err
	}
	classes := p.ClassMap.Size()
	if classes == 0 || len(p.ClassMap.NameToIndex) != classes {
		return errors.New("pipeline: invalid class map")
	}
	for i := 0; i < classes; i++ {
		if _, ok := p.ClassMap.IndexToName[i]; !ok {
			return fmt.Errorf("pipeline: class index %d has no name", i)
		}
	}
	if p.Forest.NumClasses != classes {
		return fmt.Errorf("pipeline: forest predicts %d classes, class map has %d", p.Forest.NumClasses, classes)
	}
	return p.Forest.Validate(p.Transform.OutputSize())
}

func (p *Pipeline) Fitted() bool {
	return p.ClassMap.Size() > 0 && len(p.Forest.Trees) > 0
}

// Classes returns the class labels in the order the forest indexes them.
func (p *Pipeline) Classes() []string {
	return p.ClassMap.Names()
}

// Predict transforms X with the fitted parameters and returns one label per row.
func (p *Pipeline) Predict(X [][]string) ([]string, error) {
	if !p.Fitted() {
		return nil, fmt.Errorf("pipeline: %w", ErrNotFitted)
	}
	Xt, err := p.Transform.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("error transforming features: %w", err)
	}
	predictions := make([]string, len(X))
	for i, c := range p.Forest.Predict(Xt) {
		predictions[i] = p.ClassMap.IndexToName[c]
	}
	return predictions, nil
}

// Types lists the type identifiers of every object that makes up the model.
func (m *Model) Types() []string {
	objects := []interface{}{
		m, m.MetaData, NameMap{},
		m.Pipeline, m.Pipeline.Transform,
		m.Pipeline.Transform.Encoder, m.Pipeline.Transform.Imputer, m.Pipeline.Transform.Scaler,
		m.Pipeline.Forest, &forest.Tree{}, &forest.Node{},
	}
	types := make([]string, len(objects))
	for i, o := range objects {
		types[i] = TypeID(o)
	}
	return types
}

// TypeID returns the package qualified name of v's type, dereferencing pointers.
func TypeID(v interface{}) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}
