package service

import (
	"MMDiag/internal/domain/models"
)

// Normalizer converts one day's raw record into standardized deviations
// against a consistent baseline snapshot.
type Normalizer interface {
	Normalize(rec *models.FeatureRecord, baseline *models.Baseline) (*models.NormalizedFeatureSet, error)
}

// RegimeClassifier assigns exactly one regime label per normalized set. It is
// a pure function of its inputs.
type RegimeClassifier interface {
	Classify(set *models.NormalizedFeatureSet) models.RegimeResult
}

// UnusualnessScorer aggregates weighted deviations into a bounded score
// ranked against the instrument's own score history.
type UnusualnessScorer interface {
	Score(set *models.NormalizedFeatureSet, history []float64) models.UnusualnessResult
}

// Explainer derives drivers, exclusions, and the natural-language rationale.
type Explainer interface {
	Explain(set *models.NormalizedFeatureSet, regime models.RegimeResult, score models.UnusualnessResult) models.ExplanationRecord
}
