// Package linear_model implements elastic-net penalised logistic regression.
package linear_model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

const modelName = "LogisticRegression"

// probability clamp used inside IRLS so that working weights stay positive
const pEpsilon = 1e-5

// LogisticRegression fits a binary logistic model by minimising
//
//	-(1/n) loglik + λ [ (1-α)/2 ||β||² + α ||β||₁ ]
//
// with an unpenalised intercept. λ is the penalty and α the mixture
// (1 = lasso, 0 = ridge). The solver is iteratively reweighted least squares
// with cyclic coordinate descent and soft-thresholding, so large λ with α = 1
// produces exact zeros.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      float64 // λ
	mixture      float64 // α
	fitIntercept bool
	maxIter      int     // IRLS iterations
	maxInner     int     // coordinate-descent sweeps per IRLS iteration
	tol          float64 // max absolute coefficient change

	// Model parameters
	coef      []float64
	intercept float64
	nIter     int
	converged bool
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(modelName),
		penalty:      0.01,
		mixture:      1.0,
		fitIntercept: true,
		maxIter:      100,
		maxInner:     1000,
		tol:          1e-7,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithPenalty sets the penalty strength λ (>= 0).
func WithPenalty(lambda float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = lambda
	}
}

// WithMixture sets the L1 share α in [0, 1].
func WithMixture(alpha float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.mixture = alpha
	}
}

// WithFitIntercept sets whether to fit intercept
func WithFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithMaxIter sets the maximum number of IRLS iterations
func WithMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithTol sets the tolerance for stopping criteria
func WithTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

func (lr *LogisticRegression) validateParams() error {
	switch {
	case lr.penalty < 0 || math.IsNaN(lr.penalty):
		return errors.NewValidationError("penalty", "must be >= 0", lr.penalty)
	case lr.mixture < 0 || lr.mixture > 1 || math.IsNaN(lr.mixture):
		return errors.NewValidationError("mixture", "must be in [0, 1]", lr.mixture)
	case lr.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	case lr.tol <= 0:
		return errors.NewValidationError("tol", "must be > 0", lr.tol)
	}
	return nil
}

// Fit trains the model on X (n_samples × n_features) and y (n_samples × 1, 0/1).
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validateParams(); err != nil {
		return err
	}
	prob, err := newProblem(X, y)
	if err != nil {
		return err
	}
	return lr.fit(prob, make([]float64, prob.p), prob.nullIntercept())
}

// FitPath fits one model per penalty with warm starts, visiting penalties from
// largest to smallest. The returned models follow the input order and share
// every other hyperparameter with lr.
//
// A penalty whose fit fails leaves a nil model and its error at the same
// index; the path continues from the last converged solution. The final error
// is non-nil only when X and y cannot be used at all.
func (lr *LogisticRegression) FitPath(X, y mat.Matrix, penalties []float64) ([]*LogisticRegression, []error, error) {
	prob, err := newProblem(X, y)
	if err != nil {
		return nil, nil, err
	}
	order := make([]int, len(penalties))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return penalties[order[a]] > penalties[order[b]] })

	out := make([]*LogisticRegression, len(penalties))
	errs := make([]error, len(penalties))
	beta := make([]float64, prob.p)
	b0 := prob.nullIntercept()
	for _, i := range order {
		m := lr.clone()
		m.penalty = penalties[i]
		if err := m.validateParams(); err != nil {
			errs[i] = err
			continue
		}
		if err := m.fit(prob, beta, b0); err != nil {
			errs[i] = errors.Wrapf(err, "penalty %g", penalties[i])
			continue
		}
		out[i] = m
		if m.converged {
			beta = append(beta[:0], m.coef...)
			b0 = m.intercept
		}
	}
	return out, errs, nil
}

func (lr *LogisticRegression) clone() *LogisticRegression {
	return &LogisticRegression{
		state:        model.NewStateManager(modelName),
		penalty:      lr.penalty,
		mixture:      lr.mixture,
		fitIntercept: lr.fitIntercept,
		maxIter:      lr.maxIter,
		maxInner:     lr.maxInner,
		tol:          lr.tol,
	}
}

// problem caches X column-wise for coordinate descent.
type problem struct {
	n, p int
	cols [][]float64
	y    []float64
}

func newProblem(X, y mat.Matrix) (*problem, error) {
	n, p := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || p == 0 {
		return nil, errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if n != yRows {
		return nil, errors.NewDimensionError("LogisticRegression.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}

	prob := &problem{n: n, p: p, cols: make([][]float64, p), y: make([]float64, n)}
	var nPos int
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return nil, errors.NewValueError("LogisticRegression.Fit", fmt.Sprintf("labels must be 0 or 1, got %g at row %d", v, i))
		}
		prob.y[i] = v
		if v == 1 {
			nPos++
		}
	}
	if nPos == 0 || nPos == n {
		return nil, errors.NewValueError("LogisticRegression.Fit", "y contains a single class")
	}
	for j := 0; j < p; j++ {
		prob.cols[j] = mat.Col(nil, j, X)
	}
	return prob, nil
}

// nullIntercept is the log-odds of the positive class.
func (p *problem) nullIntercept() float64 {
	mean := floats.Sum(p.y) / float64(p.n)
	return math.Log(mean / (1 - mean))
}

func (lr *LogisticRegression) fit(prob *problem, beta []float64, b0 float64) error {
	n, p := prob.n, prob.p
	beta = append([]float64(nil), beta...)
	if !lr.fitIntercept {
		b0 = 0
	}

	l1 := lr.penalty * lr.mixture
	l2 := lr.penalty * (1 - lr.mixture)
	eta := make([]float64, n)
	w := make([]float64, n)
	r := make([]float64, n)
	xw2 := make([]float64, p)

	lr.converged = false
	var iter int
	for iter = 1; iter <= lr.maxIter; iter++ {
		// working response z = η + (y-p)/w, stored as residual r = z - η
		prob.linear(beta, b0, eta)
		for i := 0; i < n; i++ {
			pi := errors.ClipValue(sigmoid(eta[i]), pEpsilon, 1-pEpsilon)
			w[i] = pi * (1 - pi)
			r[i] = (prob.y[i] - pi) / w[i]
		}
		sumW := floats.Sum(w)
		for j := 0; j < p; j++ {
			col := prob.cols[j]
			s := 0.0
			for i := 0; i < n; i++ {
				s += w[i] * col[i] * col[i]
			}
			xw2[j] = s / float64(n)
		}

		prevBeta := append([]float64(nil), beta...)
		prevB0 := b0
		for sweep := 0; sweep < lr.maxInner; sweep++ {
			maxDelta := 0.0
			for j := 0; j < p; j++ {
				if xw2[j] == 0 {
					continue
				}
				col := prob.cols[j]
				grad := 0.0
				for i := 0; i < n; i++ {
					grad += w[i] * col[i] * r[i]
				}
				grad = grad/float64(n) + xw2[j]*beta[j]
				next := softThreshold(grad, l1) / (xw2[j] + l2)
				if delta := next - beta[j]; delta != 0 {
					for i := 0; i < n; i++ {
						r[i] -= delta * col[i]
					}
					beta[j] = next
					maxDelta = math.Max(maxDelta, math.Abs(delta))
				}
			}
			if lr.fitIntercept {
				delta := floats.Dot(w, r) / sumW
				if delta != 0 {
					for i := 0; i < n; i++ {
						r[i] -= delta
					}
					b0 += delta
					maxDelta = math.Max(maxDelta, math.Abs(delta))
				}
			}
			if maxDelta < lr.tol {
				break
			}
		}

		if err := errors.CheckNumericalStability("LogisticRegression.irls", beta, iter); err != nil {
			return err
		}
		if err := errors.CheckScalar("LogisticRegression.intercept", b0, iter); err != nil {
			return err
		}

		change := math.Abs(b0 - prevB0)
		for j := range beta {
			change = math.Max(change, math.Abs(beta[j]-prevBeta[j]))
		}
		if change < lr.tol {
			lr.converged = true
			break
		}
	}
	if iter > lr.maxIter {
		iter = lr.maxIter
	}

	lr.coef = beta
	lr.intercept = b0
	lr.nIter = iter
	lr.state.SetFitted(p, n)

	if !lr.converged {
		errors.Warn(errors.NewConvergenceWarning(modelName, iter,
			fmt.Sprintf("penalty=%g mixture=%g; consider increasing max_iter or the penalty", lr.penalty, lr.mixture)))
	}
	return nil
}

func (p *problem) linear(beta []float64, b0 float64, out []float64) {
	for i := range out {
		out[i] = b0
	}
	for j, col := range p.cols {
		if beta[j] == 0 {
			continue
		}
		floats.AddScaled(out, beta[j], col)
	}
}

// DecisionFunction returns the linear predictor β0 + Xβ.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	n, p := X.Dims()
	if err := lr.state.CheckFeatures("DecisionFunction", p); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(n, nil)
	out.MulVec(X, mat.NewVecDense(p, lr.coef))
	for i := 0; i < n; i++ {
		out.SetVec(i, out.AtVec(i)+lr.intercept)
	}
	return out, nil
}

// PredictProba returns an n×2 matrix; column 1 is the positive-class probability.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	eta, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n := eta.Len()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p1 := sigmoid(eta.AtVec(i))
		probas.Set(i, 0, 1-p1)
		probas.Set(i, 1, p1)
	}
	return probas, nil
}

// Predict returns 0/1 labels at a 0.5 probability threshold.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	eta, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n := eta.Len()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if eta.AtVec(i) >= 0 {
			predictions.Set(i, 0, 1)
		}
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef...)
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept
}

// NIter returns the number of IRLS iterations used by the last fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter
}

// Converged reports whether the last fit met the tolerance.
func (lr *LogisticRegression) Converged() bool {
	return lr.converged
}

// NonZero returns the number of non-zero coefficients.
func (lr *LogisticRegression) NonZero() int {
	n := 0
	for _, c := range lr.coef {
		if c != 0 {
			n++
		}
	}
	return n
}

// Penalty returns λ.
func (lr *LogisticRegression) Penalty() float64 {
	return lr.penalty
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"mixture":       lr.mixture,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(float64)
		case "mixture":
			lr.mixture, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return lr.validateParams()
}

// ExportWeights returns the fitted coefficients in the shared weights format.
func (lr *LogisticRegression) ExportWeights(features []string) (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted("ExportWeights"); err != nil {
		return nil, err
	}
	if features != nil && len(features) != len(lr.coef) {
		return nil, errors.NewDimensionError("LogisticRegression.ExportWeights", len(lr.coef), len(features), 1)
	}
	_, nSamples := lr.state.GetDimensions()
	return &model.ModelWeights{
		ModelType:       modelName,
		Version:         model.WeightsVersion,
		Coefficients:    lr.Coef(),
		Intercept:       lr.intercept,
		Features:        append([]string(nil), features...),
		Hyperparameters: lr.GetParams(),
		Metadata: map[string]interface{}{
			"n_iter":    lr.nIter,
			"converged": lr.converged,
			"n_samples": nSamples,
		},
		IsFitted: true,
	}, nil
}

// ImportWeights restores a fitted model from exported weights.
func (lr *LogisticRegression) ImportWeights(w *model.ModelWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.ModelType != modelName {
		return errors.NewValidationError("model_type", "expected "+modelName, w.ModelType)
	}
	if v, ok := w.Hyperparameters["penalty"].(float64); ok {
		lr.penalty = v
	}
	if v, ok := w.Hyperparameters["mixture"].(float64); ok {
		lr.mixture = v
	}
	lr.coef = append([]float64(nil), w.Coefficients...)
	lr.intercept = w.Intercept
	lr.converged = true
	lr.state.SetFitted(len(lr.coef), 0)
	return nil
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// sigmoid computes the logistic function without overflow for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}
