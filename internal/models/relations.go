package models

import "time"

// Matrix is a square table keyed by column name on both axes.
type Matrix struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

// MatrixCell is one long-form matrix entry.
type MatrixCell struct {
	VarX  string   `json:"var_x"`
	VarY  string   `json:"var_y"`
	Value *float64 `json:"value"`
}

// Cells flattens the matrix row-major.
func (m Matrix) Cells() []MatrixCell {
	cells := make([]MatrixCell, 0, len(m.Columns)*len(m.Columns))
	for i, x := range m.Columns {
		for j, y := range m.Columns {
			cells = append(cells, MatrixCell{VarX: x, VarY: y, Value: m.Values[i][j]})
		}
	}
	return cells
}

// UpperTriangle returns the cells strictly above the diagonal.
func (m Matrix) UpperTriangle() []MatrixCell {
	var cells []MatrixCell
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			cells = append(cells, MatrixCell{VarX: m.Columns[i], VarY: m.Columns[j], Value: m.Values[i][j]})
		}
	}
	return cells
}

// Get returns the cell for the named pair.
func (m Matrix) Get(x, y string) *float64 {
	i, j := -1, -1
	for k, c := range m.Columns {
		if c == x {
			i = k
		}
		if c == y {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return nil
	}
	return m.Values[i][j]
}

// CorrelationMatrices holds the Pearson and Spearman matrices over the same columns.
type CorrelationMatrices struct {
	Pearson  Matrix
	Spearman Matrix
}

// RowKey identifies a feature-table row that survived complete-case filtering.
type RowKey struct {
	UserID int64     `json:"user_id"`
	Date   time.Time `json:"date"`
}

// Projection is a row-by-component score matrix.
type Projection struct {
	Rows   []RowKey    `json:"rows"`
	Scores [][]float64 `json:"scores"`
}

// Components returns the number of projected components.
func (p Projection) Components() int {
	if len(p.Scores) == 0 {
		return 0
	}
	return len(p.Scores[0])
}

// Decomposition is the PCA/ICA result over the listed feature columns.
type Decomposition struct {
	Features               []string   `json:"features"`
	PCA                    Projection `json:"pca"`
	ExplainedVarianceRatio []float64  `json:"explained_variance_ratio"`
	ICA                    Projection `json:"ica"`
}

// VIFScore is the variance-inflation factor of one column.
type VIFScore struct {
	Feature string   `json:"feature"`
	VIF     *float64 `json:"vif"`
}

// PairCorrelation is the correlation of two columns' per-day means.
type PairCorrelation struct {
	VarX string   `json:"var_x"`
	VarY string   `json:"var_y"`
	Corr *float64 `json:"corr"`
}

// CrossLagPoint is the correlation of x(t) with y(t+Lag) for one user.
type CrossLagPoint struct {
	UserID int64    `json:"user_id"`
	Lag    int      `json:"lag"`
	Corr   *float64 `json:"corr"`
}

// DeviationFlag marks a row where at least two columns deviate together.
// Z is aligned with the columns passed to the detector.
type DeviationFlag struct {
	UserID int64     `json:"user_id"`
	Date   time.Time `json:"date"`
	Flag   bool      `json:"cluster_flag"`
	Z      []float64 `json:"z"`
}
