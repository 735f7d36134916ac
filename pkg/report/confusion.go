package report

import (
	"fmt"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"rxforest/pkg/io"
)

// ConfusionMatrix counts (true, predicted) label pairs. Counts[i][j] is the
// number of rows with true label Labels[i] predicted as Labels[j].
type ConfusionMatrix struct {
	Labels []string
	Counts [][]int
}

// NewConfusionMatrix orders rows and columns by labels. Pairs involving a
// label outside labels are not counted.
func NewConfusionMatrix(yTrue, yPred, labels []string) (*ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("confusion matrix: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for k := range yTrue {
		i, ok := index[yTrue[k]]
		if !ok {
			continue
		}
		j, ok := index[yPred[k]]
		if !ok {
			continue
		}
		counts[i][j]++
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}, nil
}

func (m *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range m.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// grid exposes the matrix to the heat map with the first label on the top row.
type grid struct {
	m *ConfusionMatrix
}

func (g grid) Dims() (c, r int)   { return len(g.m.Labels), len(g.m.Labels) }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }
func (g grid) Z(c, r int) float64 { return float64(g.m.Counts[g.row(r)][c]) }
func (g grid) row(r int) int      { return len(g.m.Labels) - 1 - r }

// RenderConfusionMatrix draws the matrix as an annotated heat map and saves it
// as a PNG at the given resolution.
func RenderConfusionMatrix(path string, m *ConfusionMatrix, dpi int) error {
	if len(m.Labels) == 0 {
		return fmt.Errorf("confusion matrix: no labels")
	}
	p := plot.New()
	p.Title.Text = "Confusion matrix"
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	g := grid{m: m}
	heatMap := plotter.NewHeatMap(g, palette.Heat(12, 1))
	if heatMap.Max == heatMap.Min {
		heatMap.Max = heatMap.Min + 1
	}
	p.Add(heatMap)

	n := len(m.Labels)
	xys := make(plotter.XYs, 0, n*n)
	texts := make([]string, 0, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			xys = append(xys, plotter.XY{X: g.X(c), Y: g.Y(r)})
			texts = append(texts, strconv.Itoa(m.Counts[g.row(r)][c]))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return fmt.Errorf("error creating plot labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
		labels.TextStyle[i].YAlign = text.YCenter
	}
	p.Add(labels)

	rows := make([]string, n)
	for r := range rows {
		rows[r] = m.Labels[g.row(r)]
	}
	p.NominalX(m.Labels...)
	p.NominalY(rows...)

	canvas := vgimg.NewWith(vgimg.UseWH(6.4*vg.Inch, 4.8*vg.Inch), vgimg.UseDPI(dpi))
	p.Draw(draw.New(canvas))

	outputFile, err := io.CreateFile(path)
	if err != nil {
		return fmt.Errorf("error creating plot file %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(outputFile); err != nil {
		outputFile.Close()
		return fmt.Errorf("%w: error writing %s: %v", io.ErrFilesystem, path, err)
	}
	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", io.ErrFilesystem, err)
	}
	return nil
}
