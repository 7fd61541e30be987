// Package dataset loads gene presence/absence matrices and derives the binary
// resistance label used by every model in amrpredict.
package dataset

import (
	"gonum.org/v1/gonum/mat"
)

// FeatureMatrix holds one genome per row. It is not modified after loading;
// Subset returns independent copies.
type FeatureMatrix struct {
	// IDs は各行のサンプルID
	IDs []string

	// MetadataColumns は予測に使わないメタデータ列（入力順）
	MetadataColumns []string

	// Metadata は列名ごとのメタデータ値
	Metadata map[string][]string

	// FeatureNames は遺伝子/クラスタ識別子（X の列順）
	FeatureNames []string

	// X は n_samples × n_features の特徴量行列
	X *mat.Dense

	// Labels は元の表現型ラベル（例: "Resistant", "Susceptible"）
	Labels []string
}

// NRows returns the number of samples.
func (m *FeatureMatrix) NRows() int {
	return len(m.IDs)
}

// NFeatures returns the number of predictor columns.
func (m *FeatureMatrix) NFeatures() int {
	return len(m.FeatureNames)
}

// FeatureIndex returns the column position of a predictor.
func (m *FeatureMatrix) FeatureIndex(name string) (int, bool) {
	for j, n := range m.FeatureNames {
		if n == name {
			return j, true
		}
	}
	return -1, false
}

// Column returns a copy of one predictor column, or nil if it does not exist.
func (m *FeatureMatrix) Column(name string) []float64 {
	j, ok := m.FeatureIndex(name)
	if !ok {
		return nil
	}
	return mat.Col(nil, j, m.X)
}

// Subset returns a deep copy of the given rows, in the given order.
func (m *FeatureMatrix) Subset(idx []int) *FeatureMatrix {
	nf := m.NFeatures()
	out := &FeatureMatrix{
		IDs:             make([]string, len(idx)),
		MetadataColumns: append([]string(nil), m.MetadataColumns...),
		Metadata:        make(map[string][]string, len(m.Metadata)),
		FeatureNames:    append([]string(nil), m.FeatureNames...),
		Labels:          make([]string, len(idx)),
	}
	if len(idx) > 0 && nf > 0 {
		out.X = mat.NewDense(len(idx), nf, nil)
	}
	for col, values := range m.Metadata {
		sub := make([]string, len(idx))
		for i, r := range idx {
			sub[i] = values[r]
		}
		out.Metadata[col] = sub
	}
	for i, r := range idx {
		out.IDs[i] = m.IDs[r]
		out.Labels[i] = m.Labels[r]
		if out.X != nil {
			out.X.SetRow(i, m.X.RawRowView(r))
		}
	}
	return out
}
