package models

import (
	"sort"
	"strings"
	"time"
)

// InstrumentType separates single-name equities from baskets/ETFs. Baselines
// must never mix types; the stored type is checked on every run.
type InstrumentType string

const (
	InstrumentEquity InstrumentType = "equity"
	InstrumentBasket InstrumentType = "basket"
)

// knownBaskets lists broad index/sector products whose microstructure norms
// differ structurally from single names.
var knownBaskets = map[string]bool{
	"SPY": true, "QQQ": true, "IWM": true, "DIA": true, "VTI": true,
	"XLF": true, "XLK": true, "XLE": true, "XLV": true, "XLI": true,
	"EEM": true, "EFA": true, "HYG": true, "TLT": true, "GLD": true,
	"SLV": true, "USO": true, "SMH": true, "ARKK": true, "VXX": true,
}

// ClassifyInstrument derives the instrument type from its symbol.
func ClassifyInstrument(symbol string) InstrumentType {
	if knownBaskets[strings.ToUpper(symbol)] {
		return InstrumentBasket
	}
	return InstrumentEquity
}

// BaselineState describes how usable an instrument's baseline is.
type BaselineState string

const (
	BaselineEmpty    BaselineState = "EMPTY"    // no feature has enough history
	BaselinePartial  BaselineState = "PARTIAL"  // some features usable
	BaselineComplete BaselineState = "COMPLETE" // all score and classification features usable
)

// DistributionStats summarizes a feature's historical distribution over the
// statistics window.
type DistributionStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"` // sample standard deviation (n-1 denominator)
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"` // median absolute deviation
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	N      int     `json:"n"`
}

// IQR is the interquartile range.
func (s DistributionStats) IQR() float64 { return s.P75 - s.P25 }

// Observation is one dated feature value inside a baseline window.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ScorePoint is one dated raw unusualness score.
type ScorePoint struct {
	Date time.Time `json:"date"`
	Raw  float64   `json:"raw"`
}

// LockedStats are structural statistics that update only on an explicit
// periodic recomputation trigger, never during daily updates. The separation
// is enforced by construction: only BaselineCalculator.RecomputeLocked writes
// this struct.
type LockedStats struct {
	DarkShareTypicalLow  float64           `json:"dark_share_typical_low"`
	DarkShareTypicalHigh float64           `json:"dark_share_typical_high"`
	BlockIntensity       DistributionStats `json:"block_intensity"`
	RecomputedAt         time.Time         `json:"recomputed_at"`
}

// Baseline is the per-instrument statistical reference. Baselines of distinct
// instruments are never combined, averaged, or substituted for one another.
type Baseline struct {
	Instrument string         `json:"instrument"`
	Type       InstrumentType `json:"type"`
	Window     int            `json:"window"`   // W, trailing window length in trading days
	MinObs     int            `json:"min_obs"`  // N_min
	Stats      map[string]DistributionStats `json:"stats"`   // dynamic group, recomputed every update
	Locked     LockedStats                  `json:"locked"`  // locked group, explicit recompute only
	History    map[string][]Observation     `json:"history"` // trailing window of dated observations per feature
	ScoreHist  []ScorePoint                 `json:"score_history"`
	ElapsedDays int       `json:"elapsed_days"` // trading days seen since onboarding
	UpdatedAt   time.Time `json:"updated_at"`
}

// Eligible reports whether a feature has enough stored observations to be
// usable (n >= N_min).
func (b *Baseline) Eligible(feature string) bool {
	s, ok := b.Stats[feature]
	return ok && s.N >= b.MinObs
}

// ObservationCount returns the stored non-missing observation count for a
// feature.
func (b *Baseline) ObservationCount(feature string) int {
	if s, ok := b.Stats[feature]; ok {
		return s.N
	}
	return 0
}

// State derives the baseline state from feature eligibility. COMPLETE
// requires every score feature and required classification feature to be
// eligible; EMPTY means none are.
func (b *Baseline) State() BaselineState {
	core := make([]string, 0, len(ScoreFeatures)+len(RequiredDeviationFeatures))
	core = append(core, ScoreFeatures...)
	core = append(core, RequiredDeviationFeatures...)

	eligible := 0
	for _, f := range core {
		if b.Eligible(f) {
			eligible++
		}
	}
	switch {
	case eligible == 0:
		return BaselineEmpty
	case eligible == len(core):
		return BaselineComplete
	default:
		return BaselinePartial
	}
}

// HistoryValues returns the windowed values for a feature, oldest first.
func (b *Baseline) HistoryValues(feature string) []float64 {
	obs := b.History[feature]
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}

// ScoresBefore returns raw scores strictly before the given date, oldest
// first. Used for percentile ranking so that reprocessing a day never ranks
// the day against itself.
func (b *Baseline) ScoresBefore(date time.Time) []float64 {
	out := make([]float64, 0, len(b.ScoreHist))
	for _, p := range b.ScoreHist {
		if p.Date.Before(date) {
			out = append(out, p.Raw)
		}
	}
	return out
}

// RecordRawScore inserts or replaces the raw score for a date. Replacement
// keyed by date keeps reprocessing idempotent. The history retains one entry
// beyond the window so a pre-fold snapshot of the newest day still ranks
// against a full window of prior scores.
func (b *Baseline) RecordRawScore(date time.Time, raw float64) {
	for i, p := range b.ScoreHist {
		if p.Date.Equal(date) {
			b.ScoreHist[i].Raw = raw
			return
		}
	}
	b.ScoreHist = append(b.ScoreHist, ScorePoint{Date: date, Raw: raw})
	sort.Slice(b.ScoreHist, func(i, j int) bool { return b.ScoreHist[i].Date.Before(b.ScoreHist[j].Date) })
	if keep := b.Window + 1; len(b.ScoreHist) > keep {
		b.ScoreHist = b.ScoreHist[len(b.ScoreHist)-keep:]
	}
}

// Clone returns a deep copy. The normalizer reads a snapshot for the whole
// duration of one day's computation; the single writer updates the original
// afterwards.
func (b *Baseline) Clone() *Baseline {
	cp := *b
	cp.Stats = make(map[string]DistributionStats, len(b.Stats))
	for k, v := range b.Stats {
		cp.Stats[k] = v
	}
	cp.History = make(map[string][]Observation, len(b.History))
	for k, v := range b.History {
		cp.History[k] = append([]Observation(nil), v...)
	}
	cp.ScoreHist = append([]ScorePoint(nil), b.ScoreHist...)
	return &cp
}
