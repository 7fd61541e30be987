// Package preprocessing implements the column-role recipe applied before model
// fitting: a zero-variance filter followed by centring and scaling.
//
// A recipe is fitted once on the training subset and then applied, never
// re-fitted, to validation, test and unseen data.
package preprocessing

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

var (
	_ model.Transformer = (*StandardScaler)(nil)
	_ model.Transformer = (*ZeroVarianceFilter)(nil)
)

// Recipe assigns column roles. Predictors nil means every feature column not
// listed as supplementary.
type Recipe struct {
	Predictors    []string
	Outcome       string
	Supplementary []string
}

// FittedRecipe holds parameters learned from a training subset. Exported
// fields allow gob persistence.
type FittedRecipe struct {
	Outcome       string
	Supplementary []string

	// Schema is the ordered predictor set seen at fit time.
	Schema []string
	// Kept are the predictors surviving the zero-variance filter.
	Kept []string
	// Ignored are feature columns present at fit time that are not predictors.
	Ignored []string

	Filter *ZeroVarianceFilter
	Scaler *StandardScaler
}

// Transformed is a recipe-processed subset.
type Transformed struct {
	IDs           []string
	FeatureNames  []string
	X             *mat.Dense
	Labels        []string
	Supplementary map[string][]string
}

// Fit learns the filter and scaling parameters from the training matrix.
//
// パラメータ:
//   - m: 訓練データ（このデータのみから統計量を推定する）
//
// 戻り値:
//   - *FittedRecipe: 学習済みレシピ
//   - error: 列が存在しない、全列がゼロ分散、標準偏差が0の場合のエラー
func (r Recipe) Fit(m *dataset.FeatureMatrix) (*FittedRecipe, error) {
	if m == nil || m.NRows() == 0 {
		return nil, errors.NewModelError("Recipe.Fit", "empty training data", errors.ErrEmptyData)
	}
	supp := make(map[string]bool, len(r.Supplementary))
	for _, s := range r.Supplementary {
		supp[s] = true
	}
	if supp[r.Outcome] && r.Outcome != "" {
		return nil, errors.NewConfigErrorf("recipe", "outcome %q cannot also be supplementary", r.Outcome)
	}

	schema := r.Predictors
	if schema == nil {
		for _, name := range m.FeatureNames {
			if !supp[name] {
				schema = append(schema, name)
			}
		}
	}
	for _, name := range schema {
		if supp[name] {
			return nil, errors.NewConfigErrorf("recipe", "column %q is both predictor and supplementary", name)
		}
	}
	for _, name := range r.Supplementary {
		if _, ok := m.Metadata[name]; ok {
			continue
		}
		if _, ok := m.FeatureIndex(name); !ok {
			return nil, errors.NewConfigErrorf("recipe", "supplementary column %q not found", name)
		}
	}

	inSchema := make(map[string]bool, len(schema))
	for _, name := range schema {
		inSchema[name] = true
	}
	var ignored []string
	for _, name := range m.FeatureNames {
		if !inSchema[name] {
			ignored = append(ignored, name)
		}
	}

	X, err := selectColumns(m, schema, ignored, "Recipe.Fit")
	if err != nil {
		return nil, err
	}

	fr := &FittedRecipe{
		Outcome:       r.Outcome,
		Supplementary: append([]string(nil), r.Supplementary...),
		Schema:        append([]string(nil), schema...),
		Ignored:       ignored,
		Filter:        NewZeroVarianceFilter(),
		Scaler:        NewStandardScaler(),
	}

	filtered, err := fr.Filter.FitTransform(X)
	if err != nil {
		return nil, errors.Wrap(err, "zero-variance filter")
	}
	for _, j := range fr.Filter.Keep {
		fr.Kept = append(fr.Kept, schema[j])
	}
	if err := fr.Scaler.Fit(filtered); err != nil {
		return nil, errors.Wrap(err, "normalize")
	}

	log.GetLoggerWithName("recipe").Info("Recipe fitted",
		log.SamplesKey, m.NRows(),
		log.FeaturesKey, len(fr.Kept),
		log.DroppedKey, len(fr.Filter.Dropped),
	)
	return fr, nil
}

// Dropped lists the predictors removed by the zero-variance filter.
func (fr *FittedRecipe) Dropped() []string {
	out := make([]string, 0, len(fr.Filter.Dropped))
	for _, j := range fr.Filter.Dropped {
		out = append(out, fr.Schema[j])
	}
	return out
}

// Apply transforms any subset with the training schema. Predictor columns are
// matched by name; a different column set is a SchemaMismatchError.
func (fr *FittedRecipe) Apply(m *dataset.FeatureMatrix) (*Transformed, error) {
	X, err := selectColumns(m, fr.Schema, fr.Ignored, "Recipe.Apply")
	if err != nil {
		return nil, err
	}
	out, err := fr.transform(X)
	if err != nil {
		return nil, err
	}

	t := &Transformed{
		IDs:           append([]string(nil), m.IDs...),
		FeatureNames:  append([]string(nil), fr.Kept...),
		X:             out,
		Labels:        append([]string(nil), m.Labels...),
		Supplementary: make(map[string][]string, len(fr.Supplementary)),
	}
	for _, name := range fr.Supplementary {
		if values, ok := m.Metadata[name]; ok {
			t.Supplementary[name] = append([]string(nil), values...)
			continue
		}
		col := m.Column(name)
		if col == nil {
			return nil, errors.NewSchemaMismatchError("Recipe.Apply", []string{name}, nil)
		}
		values := make([]string, len(col))
		for i, v := range col {
			values[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		t.Supplementary[name] = values
	}
	return t, nil
}

// ApplyMatrix transforms an already numeric matrix whose columns are named by names.
func (fr *FittedRecipe) ApplyMatrix(names []string, X mat.Matrix) (*mat.Dense, error) {
	_, c := X.Dims()
	if c != len(names) {
		return nil, errors.NewDimensionError("Recipe.ApplyMatrix", len(names), c, 1)
	}
	order, err := alignColumns(names, fr.Schema, fr.Ignored, "Recipe.ApplyMatrix")
	if err != nil {
		return nil, err
	}
	return fr.transform(gather(X, order))
}

func (fr *FittedRecipe) transform(X mat.Matrix) (*mat.Dense, error) {
	filtered, err := fr.Filter.Transform(X)
	if err != nil {
		return nil, err
	}
	scaled, err := fr.Scaler.Transform(filtered)
	if err != nil {
		return nil, err
	}
	return scaled.(*mat.Dense), nil
}

// selectColumns gathers schema columns from m in schema order.
func selectColumns(m *dataset.FeatureMatrix, schema, ignored []string, op string) (*mat.Dense, error) {
	if m == nil || m.NRows() == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if len(schema) == 0 {
		return nil, errors.NewConfigError("recipe", "no predictor columns")
	}
	order, err := alignColumns(m.FeatureNames, schema, ignored, op)
	if err != nil {
		return nil, err
	}
	return gather(m.X, order), nil
}

// alignColumns returns, for each schema column, its position in names.
// Columns in names that are neither in the schema nor ignored are unexpected.
func alignColumns(names, schema, ignored []string, op string) ([]int, error) {
	skip := make(map[string]bool, len(ignored))
	for _, n := range ignored {
		skip[n] = true
	}
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	inSchema := make(map[string]bool, len(schema))
	order := make([]int, len(schema))
	var missing, unexpected []string
	for k, name := range schema {
		inSchema[name] = true
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		order[k] = i
	}
	for _, n := range names {
		if !inSchema[n] && !skip[n] {
			unexpected = append(unexpected, n)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		return nil, errors.NewSchemaMismatchError(op, missing, unexpected)
	}
	return order, nil
}

func gather(X mat.Matrix, order []int) *mat.Dense {
	r, _ := X.Dims()
	out := mat.NewDense(r, len(order), nil)
	for i := 0; i < r; i++ {
		for k, j := range order {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}
