// Package model provides the estimator interfaces, fitted-state bookkeeping and
// persistence helpers shared by every model in amrpredict.
package model

import (
	"sync"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// StateManager tracks whether a model has been fitted and the shape it was
// fitted on. Models hold it by composition.
type StateManager struct {
	Fitted bool // Public for gob encoding
	mu     sync.RWMutex

	// Public for gob encoding
	ModelName string
	NFeatures int
	NSamples  int
}

// NewStateManager creates a StateManager for the named model.
func NewStateManager(modelName string) *StateManager {
	return &StateManager{ModelName: modelName}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted with the given dimensions.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// Reset clears the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError naming method when the model has not
// been fitted.
func (s *StateManager) RequireFitted(method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(s.ModelName, method)
	}
	return nil
}

// CheckFeatures returns a DimensionError when X has a different number of
// columns than the training data.
func (s *StateManager) CheckFeatures(method string, nFeatures int) error {
	if err := s.RequireFitted(method); err != nil {
		return err
	}
	want, _ := s.GetDimensions()
	if want != nFeatures {
		return errors.NewDimensionError(s.ModelName+"."+method, want, nFeatures, 1)
	}
	return nil
}
