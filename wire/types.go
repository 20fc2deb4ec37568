package wire

import "time"

// ParcelDetected is the inbound announcement of a parcel entering the
// belt, sent before any measurement exists for it.
type ParcelDetected struct {
	ParcelId      int64             `json:"ParcelId"`
	DetectionTime time.Time         `json:"DetectionTime"`
	Metadata      map[string]string `json:"Metadata,omitempty"`
}

// DwsReading is the inbound parcel-blind measurement event. All payload
// fields are optional on the wire; absent numerics arrive as zero.
type DwsReading struct {
	Barcode    string            `json:"Barcode,omitempty"`
	Weight     float64           `json:"Weight,omitempty"`
	Length     float64           `json:"Length,omitempty"`
	Width      float64           `json:"Width,omitempty"`
	Height     float64           `json:"Height,omitempty"`
	Volume     float64           `json:"Volume,omitempty"`
	MeasuredAt time.Time         `json:"MeasuredAt,omitempty"`
	Ocr        map[string]string `json:"Ocr,omitempty"`
}

// ChuteAssignment is the outbound sorter instruction for one parcel.
type ChuteAssignment struct {
	ParcelId   int64             `json:"ParcelId"`
	ChuteId    int64             `json:"ChuteId"`
	AssignedAt time.Time         `json:"AssignedAt"`
	DwsPayload *DwsReading       `json:"DwsPayload,omitempty"`
	Metadata   map[string]string `json:"Metadata,omitempty"`
}

// LostParcelNotice is the outbound report published after lost-parcel
// correction, listing the neighbors whose decisions were overridden.
type LostParcelNotice struct {
	ParcelId           int64     `json:"ParcelId"`
	DetectedAt         time.Time `json:"DetectedAt"`
	CorrectedParcelIds []int64   `json:"CorrectedParcelIds,omitempty"`
}

// SortingCompleted is the inbound completion report from the sorter.
// AffectedParcelIds accompanies Lost reports and lists the neighbors
// whose belt position became ambiguous.
type SortingCompleted struct {
	ParcelId          int64       `json:"ParcelId"`
	ActualChuteId     int64       `json:"ActualChuteId"`
	CompletedAt       time.Time   `json:"CompletedAt"`
	IsSuccess         bool        `json:"IsSuccess"`
	FinalStatus       FinalStatus `json:"FinalStatus"`
	FailureReason     string      `json:"FailureReason,omitempty"`
	AffectedParcelIds []int64     `json:"AffectedParcelIds,omitempty"`
}
