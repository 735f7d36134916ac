package pkg

import (
	"fmt"
	"sort"

	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/rs/zerolog/log"
)

// Metrics summarizes a set of predictions against the true labels.
type Metrics struct {
	Count    int
	Correct  int
	Accuracy float64
	MacroF1  float64
	MicroF1  float64
	Classes  map[string]*stats.ClassMetrics
}

// Evaluate computes accuracy and per-class counts. The macro F1 averages over
// every label seen in yTrue or yPred plus any extra labels given; a class with
// no true positives scores 0.
func Evaluate(yTrue, yPred []string, labels ...string) (*Metrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("no predictions to evaluate")
	}
	e := &classificationEvaluator{metrics: map[string]*stats.ClassMetrics{}}
	for _, l := range labels {
		e.classMetrics(l)
	}
	for i := range yTrue {
		e.EvaluatePrediction(yTrue[i], yPred[i])
	}
	macroF1, microF1 := computeOverallF1(e.metrics)
	return &Metrics{
		Count:    e.predictionCount,
		Correct:  e.correct,
		Accuracy: float64(e.correct) / float64(e.predictionCount),
		MacroF1:  macroF1,
		MicroF1:  microF1,
		Classes:  e.metrics,
	}, nil
}

type classificationEvaluator struct {
	predictionCount int
	correct         int
	metrics         map[string]*stats.ClassMetrics
}

func (c *classificationEvaluator) EvaluatePrediction(label, predictedClass string) {
	c.predictionCount++

	labelClassMetrics := c.classMetrics(label)
	predictedClassMetrics := c.classMetrics(predictedClass)

	if label == predictedClass {
		c.correct++
		labelClassMetrics.IncTruePos()
	} else {
		labelClassMetrics.IncFalseNeg()
		predictedClassMetrics.IncFalsePos()
	}
}

func (c *classificationEvaluator) classMetrics(class string) *stats.ClassMetrics {
	m, ok := c.metrics[class]
	if !ok {
		m = stats.NewMetricCounter()
		c.metrics[class] = m
	}
	return m
}

// LogMetrics logs one line per class, sorted by class name, then the overall scores.
func (m *Metrics) LogMetrics() {
	for _, class := range sortClasses(m.Classes) {
		result := m.Classes[class]
		log.Info().Str("Class", class).
			Int("TP", result.TruePos).
			Int("FP", result.FalsePos).
			Int("FN", result.FalseNeg).
			Float64("Precision", precision(result)).
			Float64("Recall", recall(result)).
			Float64("F1", f1Score(result)).
			Msg("")
	}
	log.Info().Float64("Accuracy", m.Accuracy).Float64("MacroF1", m.MacroF1).Float64("MicroF1", m.MicroF1).Msg("")
}

func computeOverallF1(metrics map[string]*stats.ClassMetrics) (float64, float64) {
	macroF1 := 0.0
	for _, metric := range metrics {
		macroF1 += f1Score(metric)
	}
	macroF1 /= float64(len(metrics))

	micro := stats.NewMetricCounter()
	for _, result := range metrics {
		micro.TruePos += result.TruePos
		micro.FalsePos += result.FalsePos
		micro.FalseNeg += result.FalseNeg
	}
	return macroF1, f1Score(micro)
}

// The guards below keep 0/0 out of the spago ratios.

func f1Score(m *stats.ClassMetrics) float64 {
	if m.TruePos == 0 {
		return 0
	}
	return m.F1Score()
}

func precision(m *stats.ClassMetrics) float64 {
	if m.TruePos == 0 {
		return 0
	}
	return m.Precision()
}

func recall(m *stats.ClassMetrics) float64 {
	if m.TruePos == 0 {
		return 0
	}
	return m.Recall()
}

func sortClasses(metrics map[string]*stats.ClassMetrics) []string {
	result := make([]string, 0, len(metrics))
	for class := range metrics {
		result = append(result, class)
	}
	sort.Strings(result)
	return result
}
