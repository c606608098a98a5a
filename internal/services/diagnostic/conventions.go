package diagnostic

import (
	"MMDiag/internal/domain/models"
)

// GreekSource identifies the provider convention a gamma/delta exposure was
// reported under. The engine's canonical convention is dealer-perspective:
// positive gamma means dealers dampen moves, negative gamma means dealers
// amplify them.
type GreekSource string

const (
	SourceDealerPerspective   GreekSource = "dealer"
	SourceCustomerPerspective GreekSource = "customer"
)

// signMultiplier maps a source convention to the factor that converts its
// exposures into dealer perspective. Customer-perspective feeds report the
// mirror image of the dealer book.
var signMultiplier = map[GreekSource]float64{
	SourceDealerPerspective:   1,
	SourceCustomerPerspective: -1,
}

// NormalizeGreekSign converts a Greek exposure from the given source
// convention into the canonical dealer-perspective sign. An unknown source is
// fatal: guessing a sign convention silently flips the meaning of every
// gamma rule downstream.
func NormalizeGreekSign(greek string, value float64, source GreekSource) (float64, error) {
	m, ok := signMultiplier[source]
	if !ok {
		return 0, &models.SignConventionError{Greek: greek, Source: string(source)}
	}
	return value * m, nil
}

// NormalizeRecordGreeks rewrites the record's gamma and delta exposures into
// dealer perspective in place. Called once at the ingestion boundary; engine
// internals assume canonical signs.
func NormalizeRecordGreeks(rec *models.FeatureRecord, source GreekSource) error {
	for _, greek := range []string{models.FeatureGammaExposure, models.FeatureDeltaExposure} {
		v, ok := rec.Value(greek)
		if !ok {
			continue
		}
		canonical, err := NormalizeGreekSign(greek, v, source)
		if err != nil {
			return err
		}
		rec.Values[greek] = canonical
	}
	return nil
}

// CheckInstrumentType blocks runs where the instrument's classified type no
// longer matches its baseline's recorded type. ETF flow and single-name flow
// have different microstructure; comparing across the boundary is refused,
// never smoothed over.
func CheckInstrumentType(b *models.Baseline) error {
	current := models.ClassifyInstrument(b.Instrument)
	if b.Type != "" && b.Type != current {
		return &models.InstrumentTypeMismatchError{
			Instrument:   b.Instrument,
			BaselineType: b.Type,
			CurrentType:  current,
		}
	}
	return nil
}
