package io

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"rxforest/pkg/model"
	"rxforest/pkg/model/forest"
)

var forestTypes = []string{
	"rxforest/pkg/model/forest.Forest",
	"rxforest/pkg/model/forest.Node",
	"rxforest/pkg/model/forest.Tree",
}

func fittedModel(t *testing.T) (*model.Model, [][]string) {
	table, err := LoadTable(drugFile, "Drug")
	require.NoError(t, err)
	X, y := SplitFeaturesLabels(table)
	metadata := model.NewMetadata(table.Columns, table.TargetColumn, []int{1, 2, 3}, []int{0, 4})
	require.NoError(t, metadata.Validate())

	pipeline := model.NewPipeline(model.PipelineConfig{
		CategoricalFeatures: metadata.CategoricalFeatures,
		NumericFeatures:     metadata.NumericFeatures,
		HandleUnknown:       model.UnknownError,
		NumTrees:            5,
		ForestSeed:          125,
	})
	require.NoError(t, pipeline.Fit(X, y))
	metadata.TargetMap = pipeline.ClassMap
	return &model.Model{MetaData: metadata, Pipeline: pipeline}, X
}

func TestSaveLoadModel(t *testing.T) {
	m, X := fittedModel(t)
	path := filepath.Join(t.TempDir(), "Model", "drug_pipeline.rxf")
	require.NoError(t, SaveModel(path, m, "run-1"))

	untrusted, err := UntrustedTypes(path)
	require.NoError(t, err)
	require.Equal(t, forestTypes, untrusted)

	loaded, header, err := LoadModel(path, NewSet(untrusted...))
	require.NoError(t, err)
	require.Equal(t, "run-1", header.RunID)
	require.Equal(t, ArtifactFormat, header.Format)
	require.Equal(t, m.MetaData.Columns, loaded.MetaData.Columns)
	require.Equal(t, m.Pipeline.Classes(), loaded.Pipeline.Classes())

	want, err := m.Pipeline.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Pipeline.Predict(X)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("predictions differ after reload (-want +got):\n%s", diff)
	}
}

func TestLoadModel_StrictTrust(t *testing.T) {
	m, _ := fittedModel(t)
	path := filepath.Join(t.TempDir(), "model.rxf")
	require.NoError(t, SaveModel(path, m, "run-2"))

	_, _, err := LoadModel(path, NewSet())
	require.ErrorIs(t, err, ErrUntrustedType)

	_, _, err = LoadModel(path, NewSet(forestTypes[0]))
	require.ErrorIs(t, err, ErrUntrustedType)
}

func TestSaveModel_Overwrites(t *testing.T) {
	m, _ := fittedModel(t)
	path := filepath.Join(t.TempDir(), "model.rxf")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, SaveModel(path, m, "run-3"))

	header, err := ReadHeader(path)
	require.NoError(t, err)
	require.Equal(t, "run-3", header.RunID)
}

func writeHeaderOnly(t *testing.T, header ArtifactHeader) string {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(w).Encode(&header))
	require.NoError(t, w.Close())
	path := filepath.Join(t.TempDir(), "crafted.rxf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoadModel_UnrepresentableType(t *testing.T) {
	path := writeHeaderOnly(t, ArtifactHeader{
		Format:    ArtifactFormat,
		Version:   ArtifactVersion,
		CreatedAt: time.Now(),
		Types:     []string{"os/exec.Cmd"},
	})
	_, _, err := LoadModel(path, NewSet("os/exec.Cmd"))
	require.ErrorIs(t, err, ErrUnrepresentableType)
}

func TestLoadModel_BadHeader(t *testing.T) {
	path := writeHeaderOnly(t, ArtifactHeader{Format: "other", Version: ArtifactVersion})
	_, _, err := LoadModel(path, NewSet())
	require.ErrorIs(t, err, ErrSerialization)

	path = writeHeaderOnly(t, ArtifactHeader{Format: ArtifactFormat, Version: ArtifactVersion + 1})
	_, err = ReadHeader(path)
	require.ErrorIs(t, err, ErrSerialization)
}

func TestLoadModel_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.rxf")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))
	_, _, err := LoadModel(path, NewSet())
	require.ErrorIs(t, err, ErrSerialization)
}

func TestLoadModel_Missing(t *testing.T) {
	_, _, err := LoadModel(filepath.Join(t.TempDir(), "none.rxf"), NewSet())
	require.ErrorIs(t, err, ErrInputNotFound)

	_, err = UntrustedTypes(filepath.Join(t.TempDir(), "none.rxf"))
	require.ErrorIs(t, err, ErrInputNotFound)
}

func walkNodes(n *forest.Node, visit func(*forest.Node)) {
	visit(n)
	if !n.IsLeaf() {
		walkNodes(n.Left, visit)
		walkNodes(n.Right, visit)
	}
}

func TestLoadModel_InvalidPayload(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *model.Model)
	}{
		{name: "target column out of range", mutate: func(m *model.Model) { m.MetaData.TargetColumn = 42 }},
		{name: "split feature out of range", mutate: func(m *model.Model) {
			for _, tree := range m.Pipeline.Forest.Trees {
				walkNodes(tree.Root, func(n *forest.Node) {
					if !n.IsLeaf() {
						n.Feature = 99
					}
				})
			}
		}},
		{name: "split missing right child", mutate: func(m *model.Model) { m.Pipeline.Forest.Trees[0].Root.Right = nil }},
		{name: "short leaf distribution", mutate: func(m *model.Model) {
			walkNodes(m.Pipeline.Forest.Trees[0].Root, func(n *forest.Node) {
				if n.IsLeaf() {
					n.Probas = n.Probas[:1]
				}
			})
		}},
		{name: "class count mismatch", mutate: func(m *model.Model) { m.Pipeline.Forest.NumClasses = 9 }},
		{name: "target map disagrees", mutate: func(m *model.Model) { m.MetaData.TargetMap = model.NewSortedNameMap([]string{"drugZ"}) }},
		{name: "encoder not fitted", mutate: func(m *model.Model) { m.Pipeline.Transform.Encoder.Categories = nil }},
		{name: "numeric position out of range", mutate: func(m *model.Model) { m.Pipeline.Transform.Numeric = []int{0, 7} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := fittedModel(t)
			tt.mutate(m)
			path := filepath.Join(t.TempDir(), "model.rxf")
			require.NoError(t, SaveModel(path, m, "run-4"))

			_, _, err := LoadModel(path, NewSet(forestTypes...))
			require.ErrorIs(t, err, ErrSerialization)
		})
	}
}
