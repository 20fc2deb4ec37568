// Package audit persists communication records to a JetStream stream.
// The stream is the seam where a persistence collaborator attaches;
// the core only appends.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/orchestrator"
)

const (
	streamName    = "SORTATION_AUDIT"
	subjectPrefix = "sortation.audit"
)

// Recorder appends communication records to the audit stream.
type Recorder struct {
	js jetstream.JetStream
}

// NewRecorder ensures the audit stream exists and returns a recorder.
func NewRecorder(ctx context.Context, js jetstream.JetStream) (*Recorder, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "audit.Recorder", "NewRecorder", "ensure audit stream")
	}
	return &Recorder{js: js}, nil
}

// RecordCommunication appends one audited exchange.
func (r *Recorder) RecordCommunication(ctx context.Context, rec orchestrator.CommunicationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "audit.Recorder", "RecordCommunication", "encode record")
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, rec.Channel, rec.Direction)
	if _, err := r.js.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "audit.Recorder", "RecordCommunication", "publish record")
	}
	return nil
}
