package models

// Requests for diagnostic HTTP endpoints. Defined in domain for consistency and reuse.

type DiagnosticRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	Date       string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type BaselineRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
}

type RunRequest struct {
	Instrument string `json:"instrument" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
}

type BatchRunRequest struct {
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Instruments []string `json:"instruments"`
	Async       bool     `json:"async"`
}

type OnboardRequest struct {
	Instrument string `json:"instrument" validate:"required"`
	Lookback   int    `json:"lookback" default:"63" validate:"gte=0,lte=504"`
	Force      bool   `json:"force"`
}

type RecomputeRequest struct {
	Instrument string `json:"instrument"`
	AsOf       string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}
