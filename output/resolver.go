package output

import (
	"context"
	"encoding/json"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/natsclient"
	"github.com/zakyip/sortengine/orchestrator"
	"github.com/zakyip/sortengine/parcel"
)

// NATSResolver implements the ApiDriven chute-resolution collaborator
// over NATS request-reply. The reply payload is retained verbatim for
// audit.
type NATSResolver struct {
	client  *natsclient.Client
	subject string
}

// NewNATSResolver creates a resolver requesting chutes on the given subject.
func NewNATSResolver(client *natsclient.Client, subject string) *NATSResolver {
	return &NATSResolver{client: client, subject: subject}
}

type resolverRequest struct {
	ParcelId string            `json:"ParcelId"`
	Barcode  string            `json:"Barcode,omitempty"`
	Weight   float64           `json:"Weight,omitempty"`
	Length   float64           `json:"Length,omitempty"`
	Width    float64           `json:"Width,omitempty"`
	Height   float64           `json:"Height,omitempty"`
	Volume   float64           `json:"Volume,omitempty"`
	Ocr      map[string]string `json:"Ocr,omitempty"`
}

type resolverReply struct {
	ChuteId string `json:"ChuteId"`
}

// RequestChute asks the external system for a chute decision.
func (r *NATSResolver) RequestChute(ctx context.Context, p parcel.Parcel, reading parcel.DwsReading, ocr *parcel.OcrData) (orchestrator.ChuteResponse, error) {
	req := resolverRequest{
		ParcelId: p.ParcelID,
		Barcode:  p.Barcode,
		Weight:   reading.Weight,
		Length:   reading.Length,
		Width:    reading.Width,
		Height:   reading.Height,
		Volume:   reading.Volume,
	}
	if ocr != nil {
		req.Ocr = ocr.Fields
	}

	data, err := json.Marshal(req)
	if err != nil {
		return orchestrator.ChuteResponse{}, errors.WrapInvalid(err, "output.NATSResolver", "RequestChute", "encode request")
	}

	replyData, err := r.client.Request(ctx, r.subject, data)
	if err != nil {
		return orchestrator.ChuteResponse{}, err
	}

	var reply resolverReply
	if err := json.Unmarshal(replyData, &reply); err != nil {
		return orchestrator.ChuteResponse{}, errors.WrapInvalid(err, "output.NATSResolver", "RequestChute", "decode reply")
	}

	return orchestrator.ChuteResponse{
		ChuteID: reply.ChuteId,
		Payload: string(replyData),
	}, nil
}
