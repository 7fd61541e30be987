package pipeline

import (
	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/preprocessing"
	"github.com/YuminosukeSato/amrpredict/sklearn/ensemble"
	"github.com/YuminosukeSato/amrpredict/sklearn/linear_model"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// BundleVersion is the bundle format version.
const BundleVersion = 1

// Bundle is a fitted workflow (recipe + final model) that can score genomes
// not seen during the run. It is stored with gob.
type Bundle struct {
	Version       int
	RunID         string
	Model         string
	PositiveClass string
	Params        tuning.Params
	Recipe        *preprocessing.FittedRecipe

	// LogisticWeights is the JSON encoding of model.ModelWeights.
	LogisticWeights []byte
	Forest          *ensemble.ForestState
}

// Prediction is the score of one genome.
type Prediction struct {
	ID          string  `json:"id" yaml:"id"`
	Probability float64 `json:"probability" yaml:"probability"`
	Predicted   string  `json:"predicted" yaml:"predicted"`

	// Metadata holds the supplementary columns of the row, unchanged.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewBundle packages the final fit of mr together with the run's final recipe.
func NewBundle(res *Result, mr *ModelResult) (*Bundle, error) {
	if res == nil || mr == nil || mr.Final == nil {
		return nil, errors.NewValueError("pipeline.NewBundle", "no final fit to bundle")
	}
	b := &Bundle{
		Version:       BundleVersion,
		RunID:         res.RunID,
		Model:         mr.Name,
		PositiveClass: res.PositiveClass,
		Params:        mr.Final.Candidate.Params,
		Recipe:        res.FinalRecipe,
	}
	switch m := mr.Final.Model.(type) {
	case *linear_model.LogisticRegression:
		w, err := m.ExportWeights(res.Recipe.Kept)
		if err != nil {
			return nil, err
		}
		if b.LogisticWeights, err = w.ToJSON(); err != nil {
			return nil, errors.Wrap(err, "encode weights")
		}
	case *ensemble.RandomForestClassifier:
		s, err := m.Export()
		if err != nil {
			return nil, err
		}
		b.Forest = s
	default:
		return nil, errors.NewValueError("pipeline.NewBundle", "unsupported model "+mr.Name)
	}
	return b, nil
}

// Save writes the bundle to path atomically.
func (b *Bundle) Save(path string) error {
	return model.SaveModel(b, path)
}

// LoadBundle reads a bundle written by Save.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if err := model.LoadModel(&b, path); err != nil {
		return nil, err
	}
	if b.Version != BundleVersion {
		return nil, errors.NewValidationError("bundle.version", "unsupported bundle version", b.Version)
	}
	if b.Recipe == nil {
		return nil, errors.NewValidationError("bundle.recipe", "bundle has no recipe", nil)
	}
	return &b, nil
}

// Classifier rebuilds the fitted model.
func (b *Bundle) Classifier() (model.Classifier, error) {
	switch {
	case b.LogisticWeights != nil:
		var w model.ModelWeights
		if err := w.FromJSON(b.LogisticWeights); err != nil {
			return nil, err
		}
		lr := linear_model.NewLogisticRegression()
		if err := lr.ImportWeights(&w); err != nil {
			return nil, err
		}
		return lr, nil
	case b.Forest != nil:
		return ensemble.FromState(b.Forest)
	}
	return nil, errors.NewValidationError("bundle.model", "bundle holds no model", b.Model)
}

// Predict applies the stored recipe and model to m. Columns are matched by
// name, so m may order them differently; a different column set is a
// SchemaMismatchError. Probabilities >= 0.5 are labelled with the positive
// class.
func (b *Bundle) Predict(m *dataset.FeatureMatrix) ([]Prediction, error) {
	t, err := b.Recipe.Apply(m)
	if err != nil {
		return nil, errors.Wrap(err, StageRecipe)
	}
	clf, err := b.Classifier()
	if err != nil {
		return nil, err
	}
	scores, err := model.PositiveScores(clf, t.X)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	out := make([]Prediction, scores.Len())
	for i := range out {
		p := scores.AtVec(i)
		label := "not " + b.PositiveClass
		if p >= tuning.DefaultThreshold {
			label = b.PositiveClass
		}
		out[i] = Prediction{ID: m.IDs[i], Probability: p, Predicted: label}
		if len(t.Supplementary) > 0 {
			out[i].Metadata = make(map[string]string, len(t.Supplementary))
			for name, values := range t.Supplementary {
				out[i].Metadata[name] = values[i]
			}
		}
	}
	log.GetLoggerWithName("pipeline").Info("Genomes scored",
		log.ModelNameKey, b.Model,
		log.OperationKey, log.OperationPredict,
		log.SamplesKey, len(out),
	)
	return out, nil
}
