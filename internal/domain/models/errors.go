package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingBaseline means no baseline exists for the instrument. The run is
// fatal for that instrument; the caller must onboard it first.
var ErrMissingBaseline = errors.New("no baseline for instrument; onboard first")

// InvalidDomainValueError reports a feature value outside its defined domain.
// It is surfaced explicitly, never silently clamped or discarded.
type InvalidDomainValueError struct {
	Instrument string
	Feature    string
	Value      float64
	Min        float64
	Max        float64
}

func (e *InvalidDomainValueError) Error() string {
	return fmt.Sprintf("invalid domain value: %s %s=%g outside [%g, %g]",
		e.Instrument, e.Feature, e.Value, e.Min, e.Max)
}

// InstrumentTypeMismatchError blocks processing when an instrument's
// classified type conflicts with its stored baseline's recorded type.
type InstrumentTypeMismatchError struct {
	Instrument   string
	BaselineType InstrumentType
	CurrentType  InstrumentType
}

func (e *InstrumentTypeMismatchError) Error() string {
	return fmt.Sprintf("instrument type mismatch: %s baseline=%s current=%s",
		e.Instrument, e.BaselineType, e.CurrentType)
}

// SignConventionError means a Greek exposure could not be mapped onto the
// canonical dealer-perspective sign convention. Fatal.
type SignConventionError struct {
	Greek  string
	Source string
}

func (e *SignConventionError) Error() string {
	return fmt.Sprintf("sign convention violation: greek=%s source=%s", e.Greek, e.Source)
}

// DriftWarning records a significant shift in a feature's baseline mean
// between consecutive recomputations. Non-fatal; logged, never blocking.
type DriftWarning struct {
	Instrument string    `json:"instrument"`
	Feature    string    `json:"feature"`
	PrevMean   float64   `json:"prev_mean"`
	NewMean    float64   `json:"new_mean"`
	ChangePct  float64   `json:"change_pct"`
	Threshold  float64   `json:"threshold"`
	Date       time.Time `json:"date"`
}

func (w DriftWarning) String() string {
	return fmt.Sprintf("baseline drift: %s %s mean %.6g -> %.6g (%+.1f%%, threshold %.0f%%)",
		w.Instrument, w.Feature, w.PrevMean, w.NewMean, w.ChangePct*100, w.Threshold*100)
}
