package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var (
	ErrInputNotFound = errors.New("input not found")
	ErrInputParse    = errors.New("input parse error")
	ErrFilesystem    = errors.New("filesystem error")
)

type void struct{}

var Void = void{}

type Set map[string]void

func NewSet(values ...string) Set {
	set := Set{}
	for _, val := range values {
		set[val] = Void
	}
	return set
}

func (s Set) Contains(value string) bool {
	_, ok := s[value]
	return ok
}

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []string {
	result := make([]string, 0, len(s))
	for v := range s {
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}

// Table is a CSV file held in memory: the header, the data rows, and the
// position of the target column.
type Table struct {
	Columns      []string
	Rows         [][]string
	TargetColumn int
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// LoadTable reads a CSV file with a header row. Every row must have as many
// fields as the header.
func LoadTable(dataFile, targetColumn string) (*Table, error) {
	inputFile, err := os.Open(dataFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, dataFile)
		}
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()
	return ReadTable(inputFile, targetColumn)
}

func ReadTable(input io.Reader, targetColumn string) (*Table, error) {
	reader := csv.NewReader(input)
	reader.Comma = ','

	//First line is expected to be a header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: error reading data header: %v", ErrInputParse, err)
	}
	table := &Table{Columns: header}
	if table.TargetColumn, err = findColumn(header, targetColumn); err != nil {
		return nil, err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputParse, err)
		}
		table.Rows = append(table.Rows, record)
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrInputParse)
	}
	return table, nil
}

func findColumn(header []string, name string) (int, error) {
	for i, col := range header {
		if col == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: target column %s not found in data header", ErrInputParse, name)
}

// SplitFeaturesLabels drops the target column from every row. The i-th
// feature row and the i-th label come from the i-th table row.
func SplitFeaturesLabels(t *Table) ([][]string, []string) {
	X := make([][]string, len(t.Rows))
	y := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		features := make([]string, 0, len(row)-1)
		for j, v := range row {
			if j == t.TargetColumn {
				y[i] = v
			} else {
				features = append(features, v)
			}
		}
		X[i] = features
	}
	return X, y
}

// EnsureDir creates dir and its parents. An existing directory is not an error.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return nil
}

// CreateFile creates the parent directory of path if needed and truncates
// any existing file.
func CreateFile(path string) (*os.File, error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return f, nil
}
