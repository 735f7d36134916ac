package io

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ulikunitz/xz"

	"rxforest/pkg/model"
	"rxforest/pkg/model/forest"
)

const (
	ArtifactFormat  = "rxforest-pipeline"
	ArtifactVersion = 1
)

var (
	ErrSerialization = errors.New("serialization error")
	// ErrUntrustedType is returned when an artifact holds a type that is
	// neither trusted by default nor trusted by the caller.
	ErrUntrustedType = errors.New("untrusted type")
	// ErrUnrepresentableType is returned when an artifact holds a type this
	// loader has no decoder for. Trusting it does not help.
	ErrUnrepresentableType = errors.New("unrepresentable type")
)

// ArtifactHeader is the first value of a model file. Types lists every type
// that the payload is made of, so it can be checked before decoding.
type ArtifactHeader struct {
	Format    string
	Version   int
	RunID     string
	CreatedAt time.Time
	Types     []string
}

// DefaultTrusted holds the types accepted without the caller asking: the
// containers, the metadata and the preprocessing steps.
var DefaultTrusted = NewSet(
	model.TypeID(&model.Model{}),
	model.TypeID(&model.Metadata{}),
	model.TypeID(model.NameMap{}),
	model.TypeID(&model.Pipeline{}),
	model.TypeID(&model.ColumnTransformer{}),
	model.TypeID(&model.OrdinalEncoder{}),
	model.TypeID(&model.MedianImputer{}),
	model.TypeID(&model.StandardScaler{}),
)

var knownTypes = func() Set {
	known := NewSet(model.TypeID(&forest.Forest{}), model.TypeID(&forest.Tree{}), model.TypeID(&forest.Node{}))
	for t := range DefaultTrusted {
		known[t] = Void
	}
	return known
}()

// SaveModel writes m to path, replacing any existing file.
func SaveModel(path string, m *model.Model, runID string) error {
	outputFile, err := CreateFile(path)
	if err != nil {
		return err
	}
	if err := WriteModel(outputFile, m, runID); err != nil {
		outputFile.Close()
		return err
	}
	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return nil
}

func WriteModel(writer io.Writer, m *model.Model, runID string) error {
	compressor, err := xz.NewWriter(writer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	header := ArtifactHeader{
		Format:    ArtifactFormat,
		Version:   ArtifactVersion,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Types:     m.Types(),
	}
	encoder := gob.NewEncoder(compressor)
	if err := encoder.Encode(&header); err != nil {
		return fmt.Errorf("%w: error encoding header: %v", ErrSerialization, err)
	}
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("%w: error encoding model: %v", ErrSerialization, err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// ReadHeader decodes only the header of an artifact.
func ReadHeader(path string) (*ArtifactHeader, error) {
	inputFile, err := openArtifact(path)
	if err != nil {
		return nil, err
	}
	defer inputFile.Close()
	header, _, err := readHeader(inputFile)
	return header, err
}

// UntrustedTypes lists the artifact's types that are not in DefaultTrusted,
// sorted.
func UntrustedTypes(path string) ([]string, error) {
	header, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	untrusted := NewSet()
	for _, t := range header.Types {
		if !DefaultTrusted.Contains(t) {
			untrusted[t] = Void
		}
	}
	return untrusted.Sorted(), nil
}

// LoadModel checks every type in the artifact header before decoding the
// payload. Types not in DefaultTrusted must be in trusted.
func LoadModel(path string, trusted Set) (*model.Model, *ArtifactHeader, error) {
	inputFile, err := openArtifact(path)
	if err != nil {
		return nil, nil, err
	}
	defer inputFile.Close()
	return ReadModel(inputFile, trusted)
}

func ReadModel(input io.Reader, trusted Set) (*model.Model, *ArtifactHeader, error) {
	header, decoder, err := readHeader(input)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range header.Types {
		if !knownTypes.Contains(t) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnrepresentableType, t)
		}
		if !DefaultTrusted.Contains(t) && !trusted.Contains(t) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUntrustedType, t)
		}
	}
	m := model.Model{}
	if err := decoder.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("%w: error decoding model: %v", ErrSerialization, err)
	}
	if err := validateModel(&m); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &m, header, nil
}

// validateModel rejects decoded models that would fail at prediction time:
// out of range positions, malformed trees or disagreeing class maps.
func validateModel(m *model.Model) error {
	if m.MetaData == nil || m.Pipeline == nil {
		return errors.New("incomplete model")
	}
	if err := m.MetaData.Validate(); err != nil {
		return err
	}
	if err := m.Pipeline.Validate(m.MetaData.FeatureCount()); err != nil {
		return err
	}
	classes, targets := m.Pipeline.Classes(), m.MetaData.TargetMap.Names()
	if len(classes) != len(targets) {
		return fmt.Errorf("target map has %d classes, pipeline has %d", len(targets), len(classes))
	}
	for i := range classes {
		if classes[i] != targets[i] {
			return fmt.Errorf("target map class %d is %q, pipeline has %q", i, targets[i], classes[i])
		}
	}
	return nil
}

func openArtifact(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return f, nil
}

func readHeader(input io.Reader) (*ArtifactHeader, *gob.Decoder, error) {
	decompressor, err := xz.NewReader(input)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	decoder := gob.NewDecoder(decompressor)
	header := ArtifactHeader{}
	if err := decoder.Decode(&header); err != nil {
		return nil, nil, fmt.Errorf("%w: error decoding header: %v", ErrSerialization, err)
	}
	if header.Format != ArtifactFormat {
		return nil, nil, fmt.Errorf("%w: unexpected format %q", ErrSerialization, header.Format)
	}
	if header.Version != ArtifactVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrSerialization, header.Version)
	}
	return &header, decoder, nil
}
