package parcel

import (
	"time"
)

// Parcel is one physical item announced by the upstream detection signal.
// SequenceNumber is assigned at admission by the correlation queue and
// defines physical belt order; it is the only gap-free ordering in the
// system. Barcode may stay empty until a DWS reading is bound.
type Parcel struct {
	ParcelID       string
	SequenceNumber int64
	CartNumber     string
	Barcode        string
	CreatedAt      time.Time
	Metadata       map[string]string

	// Reading is set once a DWS reading has been bound. Nil while the
	// parcel is still pending in the correlation queue.
	Reading *DwsReading
}

// DwsReading is one dimensioning/weighing/scanning measurement. It
// arrives with no parcel identifier; binding happens by timing inside
// the correlation window. Barcode is advisory only (relabeled and
// duplicate barcodes occur on real belts).
type DwsReading struct {
	Barcode   string
	Weight    float64
	Length    float64
	Width     float64
	Height    float64
	Volume    float64
	ScannedAt time.Time
}

// OcrData carries OCR-derived segments for matchers that inspect label
// text (three-segment code parts, phone suffixes and similar).
type OcrData struct {
	Fields map[string]string
}

// DecisionSource identifies which strategy produced a chute decision
type DecisionSource string

// Decision sources
const (
	SourceRuleBased    DecisionSource = "RuleBased"
	SourceAutoResponse DecisionSource = "AutoResponse"
	SourceApiDriven    DecisionSource = "ApiDriven"
	SourceException    DecisionSource = "Exception"
)

// ChuteDecision is the result value emitted for every resolved parcel.
type ChuteDecision struct {
	DecisionID    string
	ParcelID      string
	ChuteID       string
	Source        DecisionSource
	MatchedRuleID string
	DecidedAt     time.Time
}

// SortingMode selects the chute-decision strategy
type SortingMode string

// Sorting modes
const (
	ModeRuleBased    SortingMode = "RuleBased"
	ModeAutoResponse SortingMode = "AutoResponse"
	ModeApiDriven    SortingMode = "ApiDriven"
)

// Valid reports whether the mode is one of the three known strategies.
func (m SortingMode) Valid() bool {
	switch m {
	case ModeRuleBased, ModeAutoResponse, ModeApiDriven:
		return true
	}
	return false
}
