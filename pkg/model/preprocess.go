package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// UnknownPolicy decides what the ordinal encoder does with a category it did
// not see during fit.
type UnknownPolicy string

const (
	UnknownError  UnknownPolicy = "error"
	UnknownEncode UnknownPolicy = "encode"
)

// UnknownCode is emitted for unseen categories under UnknownEncode.
const UnknownCode = -1

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(s); p {
	case UnknownError, UnknownEncode:
		return p, nil
	}
	return "", fmt.Errorf("invalid unknown category policy %q (want %q or %q)", s, UnknownError, UnknownEncode)
}

// OrdinalEncoder maps each category of a column to its index among the
// sorted distinct training values.
type OrdinalEncoder struct {
	Categories    []NameMap
	HandleUnknown UnknownPolicy
}

func (e *OrdinalEncoder) Fit(X [][]string) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: ordinal encoder: no rows", ErrFit)
	}
	e.Categories = make([]NameMap, len(X[0]))
	for j := range e.Categories {
		e.Categories[j] = NewSortedNameMap(column(X, j))
	}
	return nil
}

func (e *OrdinalEncoder) Transform(X [][]string) ([][]float64, error) {
	if e.Categories == nil {
		return nil, fmt.Errorf("ordinal encoder: %w", ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(e.Categories))
		for j, categories := range e.Categories {
			code, ok := categories.ContainsName(row[j])
			if !ok {
				if e.HandleUnknown != UnknownEncode {
					return nil, fmt.Errorf("%w: value %q in row %d, column %d", ErrUnknownCategory, row[j], i, j)
				}
				code = UnknownCode
			}
			out[i][j] = float64(code)
		}
	}
	return out, nil
}

// MedianImputer parses numeric columns and fills missing cells with the
// training median.
type MedianImputer struct {
	Medians []float64
}

func (m *MedianImputer) Fit(X [][]string) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: median imputer: no rows", ErrFit)
	}
	m.Medians = make([]float64, len(X[0]))
	for j := range m.Medians {
		values := make([]float64, 0, len(X))
		for i, s := range column(X, j) {
			if isMissing(s) {
				continue
			}
			v, err := parseNumber(s)
			if err != nil {
				return fmt.Errorf("%w: row %d, column %d: %v", ErrFit, i, j, err)
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: median imputer: column %d has no values", ErrFit, j)
		}
		m.Medians[j] = median(values)
	}
	return nil
}

func (m *MedianImputer) Transform(X [][]string) ([][]float64, error) {
	if m.Medians == nil {
		return nil, fmt.Errorf("median imputer: %w", ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(m.Medians))
		for j := range m.Medians {
			if isMissing(row[j]) {
				out[i][j] = m.Medians[j]
				continue
			}
			v, err := parseNumber(row[j])
			if err != nil {
				return nil, fmt.Errorf("row %d, column %d: %w", i, j, err)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// StandardScaler centers each column on the training mean and divides by the
// training population standard deviation.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: standard scaler: no rows", ErrFit)
	}
	c := len(X[0])
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	for j := 0; j < c; j++ {
		col := make([]float64, len(X))
		for i := range X {
			col[i] = X[i][j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = math.Sqrt(stat.Moment(2, col, nil))
		if math.IsNaN(s.Std[j]) || math.IsInf(s.Mean[j], 0) {
			return fmt.Errorf("%w: standard scaler: column %d is not finite", ErrFit, j)
		}
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return nil
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, fmt.Errorf("standard scaler: %w", ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(s.Mean))
		for j := range row {
			row[j] = (X[i][j] - s.Mean[j]) / s.Std[j]
		}
		out[i] = row
	}
	return out, nil
}

// ColumnTransformer routes categorical positions through the encoder and
// numeric positions through imputer then scaler. The output row is the
// encoded columns followed by the scaled columns.
type ColumnTransformer struct {
	Categorical []int
	Numeric     []int

	Encoder *OrdinalEncoder
	Imputer *MedianImputer
	Scaler  *StandardScaler
}

func NewColumnTransformer(categorical, numeric []int, unknown UnknownPolicy) *ColumnTransformer {
	return &ColumnTransformer{
		Categorical: categorical,
		Numeric:     numeric,
		Encoder:     &OrdinalEncoder{HandleUnknown: unknown},
		Imputer:     &MedianImputer{},
		Scaler:      &StandardScaler{},
	}
}

func (c *ColumnTransformer) OutputSize() int {
	return len(c.Categorical) + len(c.Numeric)
}

func (c *ColumnTransformer) Fit(X [][]string) error {
	if err := c.checkWidth(X); err != nil {
		return err
	}
	if err := c.Encoder.Fit(selectColumns(X, c.Categorical)); err != nil {
		return err
	}
	numeric := selectColumns(X, c.Numeric)
	if err := c.Imputer.Fit(numeric); err != nil {
		return err
	}
	imputed, err := c.Imputer.Transform(numeric)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFit, err)
	}
	return c.Scaler.Fit(imputed)
}

func (c *ColumnTransformer) Transform(X [][]string) ([][]float64, error) {
	if err := c.checkWidth(X); err != nil {
		return nil, err
	}
	encoded, err := c.Encoder.Transform(selectColumns(X, c.Categorical))
	if err != nil {
		return nil, err
	}
	imputed, err := c.Imputer.Transform(selectColumns(X, c.Numeric))
	if err != nil {
		return nil, err
	}
	scaled, err := c.Scaler.Transform(imputed)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = append(encoded[i], scaled[i]...)
	}
	return out, nil
}

// Validate checks that the fitted steps agree with the column positions and
// that every position exists in a feature row of numFeatures values.
func (c *ColumnTransformer) Validate(numFeatures int) error {
	if c.Encoder == nil || c.Imputer == nil || c.Scaler == nil {
		return fmt.Errorf("column transformer: missing step")
	}
	for _, p := range append(append([]int{}, c.Categorical...), c.Numeric...) {
		if p < 0 || p >= numFeatures {
			return fmt.Errorf("column transformer: position %d out of range for %d features", p, numFeatures)
		}
	}
	if len(c.Encoder.Categories) != len(c.Categorical) {
		return fmt.Errorf("column transformer: %d encoded columns for %d categorical positions", len(c.Encoder.Categories), len(c.Categorical))
	}
	for j, categories := range c.Encoder.Categories {
		if categories.Size() == 0 || len(categories.NameToIndex) != categories.Size() {
			return fmt.Errorf("column transformer: categorical column %d has an invalid category map", j)
		}
	}
	if len(c.Imputer.Medians) != len(c.Numeric) || len(c.Scaler.Mean) != len(c.Numeric) || len(c.Scaler.Std) != len(c.Numeric) {
		return fmt.Errorf("column transformer: numeric steps do not match %d numeric positions", len(c.Numeric))
	}
	return nil
}

func (c *ColumnTransformer) checkWidth(X [][]string) error {
	width := 0
	for _, p := range append(append([]int{}, c.Categorical...), c.Numeric...) {
		if p+1 > width {
			width = p + 1
		}
	}
	for i, row := range X {
		if len(row) < width {
			return fmt.Errorf("%w: row %d has %d features, column transformer needs %d", ErrFit, i, len(row), width)
		}
	}
	return nil
}

func selectColumns(X [][]string, positions []int) [][]string {
	out := make([][]string, len(X))
	for i, row := range X {
		out[i] = make([]string, len(positions))
		for j, p := range positions {
			out[i][j] = row[p]
		}
	}
	return out
}

func column(X [][]string, j int) []string {
	col := make([]string, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}

func isMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "nan":
		return true
	}
	return false
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
