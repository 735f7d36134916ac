package io

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/stretchr/testify/require"
)

const drugFile = "../../testdata/drug.csv"

func TestLoadTable(t *testing.T) {
	table, err := LoadTable(drugFile, "Drug")
	require.NoError(t, err)
	require.Equal(t, 200, table.Len())
	require.Equal(t, 5, table.TargetColumn)
	require.Equal(t, []string{"Age", "Sex", "BP", "Cholesterol", "Na_to_K", "Drug"}, table.Columns)
	require.Equal(t, []string{"35", "F", "LOW", "HIGH", "8.518", "drugC"}, table.Rows[0])
}

func TestLoadTable_Errors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		target string
		err    error
	}{
		{name: "missing file", file: "../../testdata/missing.csv", target: "Drug", err: ErrInputNotFound},
		{name: "short row", file: "../../testdata/malformed.csv", target: "Drug", err: ErrInputParse},
		{name: "missing target", file: drugFile, target: "Dose", err: ErrInputParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTable(tt.file, tt.target)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestReadTable_NoRows(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Age,Drug\n"), "Drug")
	require.ErrorIs(t, err, ErrInputParse)

	_, err = ReadTable(strings.NewReader(""), "Drug")
	require.ErrorIs(t, err, ErrInputParse)
}

func TestSplitFeaturesLabels(t *testing.T) {
	table, err := ReadTable(strings.NewReader("Drug,Age,Sex\ndrugA,23,F\ndrugB,47,M\n"), "Drug")
	require.NoError(t, err)
	X, y := SplitFeaturesLabels(table)
	require.Equal(t, [][]string{{"23", "F"}, {"47", "M"}}, X)
	require.Equal(t, []string{"drugA", "drugB"}, y)
}

func TestShuffle(t *testing.T) {
	table, err := LoadTable(drugFile, "Drug")
	require.NoError(t, err)
	first := table.Rows[0]

	shuffled := Shuffle(table, rand.NewLockedRand(3))
	require.Equal(t, table.Len(), shuffled.Len())
	require.ElementsMatch(t, table.Rows, shuffled.Rows)
	require.Equal(t, first, table.Rows[0])

	again := Shuffle(table, rand.NewLockedRand(3))
	require.Equal(t, shuffled.Rows, again.Rows)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Results", "nested")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.ErrorIs(t, EnsureDir(filepath.Join(file, "sub")), ErrFilesystem)
}

func TestSet(t *testing.T) {
	s := NewSet("b", "a", "b")
	require.Len(t, s, 2)
	require.True(t, s.Contains("a"))
	require.False(t, s.Contains("c"))
	require.Equal(t, []string{"a", "b"}, s.Sorted())
}
