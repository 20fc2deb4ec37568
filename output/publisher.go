// Package output delivers chute assignments to the sorter over NATS and
// exposes a live decision feed for monitoring clients.
package output

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/natsclient"
	"github.com/zakyip/sortengine/pkg/clock"
	"github.com/zakyip/sortengine/wire"
)

// Publisher publishes chute assignments on the wire-contract subject.
// It implements the orchestrator's SorterClient collaborator.
type Publisher struct {
	client  *natsclient.Client
	subject string
	clk     clock.Clock
	logger  *slog.Logger
}

// NewPublisher creates the outbound sorter adapter.
func NewPublisher(client *natsclient.Client, subject string, clk clock.Clock, logger *slog.Logger) *Publisher {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		subject: subject,
		clk:     clk,
		logger:  logger,
	}
}

// SendChuteNumber publishes the chute instruction for a parcel. Core
// ids are strings; the wire contract carries int64, so non-numeric
// chute codes travel in Metadata with ChuteId zero.
func (p *Publisher) SendChuteNumber(ctx context.Context, parcelID, chuteID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	assignment := wire.ChuteAssignment{
		AssignedAt: p.clk.Now(),
	}

	pid, err := strconv.ParseInt(parcelID, 10, 64)
	if err != nil {
		return false, errors.WrapInvalid(err, "output.Publisher", "SendChuteNumber", "encode parcel id")
	}
	assignment.ParcelId = pid

	if cid, err := strconv.ParseInt(chuteID, 10, 64); err == nil {
		assignment.ChuteId = cid
	} else {
		assignment.Metadata = map[string]string{"ChuteCode": chuteID}
	}

	data, err := json.Marshal(assignment)
	if err != nil {
		return false, errors.WrapInvalid(err, "output.Publisher", "SendChuteNumber", "encode assignment")
	}

	if err := p.client.Publish(p.subject, data); err != nil {
		return false, err
	}

	p.logger.Debug("chute assignment published",
		"parcel_id", parcelID,
		"chute_id", chuteID,
		"subject", p.subject)
	return true, nil
}
